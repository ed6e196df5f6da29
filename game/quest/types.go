package quest

import (
	"strings"
	"time"

	"github.com/Fixen7/lifequest-app/apperr"
	"github.com/Fixen7/lifequest-app/game/daily"
)

// Difficulty fixes an objective's reward at creation time.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyNormal Difficulty = "Normal"
	DifficultyHard   Difficulty = "Hard"
	DifficultyEpic   Difficulty = "Epic"
)

func (d Difficulty) IsValid() bool {
	switch d {
	case DifficultyEasy, DifficultyNormal, DifficultyHard, DifficultyEpic:
		return true
	default:
		return false
	}
}

// ParseDifficulty accepts any casing ("epic", "EPIC", "Epic").
func ParseDifficulty(s string) (Difficulty, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DifficultyNormal, nil
	}
	d := Difficulty(strings.ToUpper(s[:1]) + strings.ToLower(s[1:]))
	if !d.IsValid() {
		return "", apperr.Invalid("difficulty", "unknown difficulty "+s)
	}
	return d, nil
}

// RewardTable maps a difficulty to the objective's XP reward.
type RewardTable map[Difficulty]int

var DefaultRewards = RewardTable{
	DifficultyEasy:   100,
	DifficultyNormal: 250,
	DifficultyHard:   500,
	DifficultyEpic:   1000,
}

// RewardTableFromConfig converts lower-case config keys ("epic": 1000).
// Missing difficulties keep their default reward.
func RewardTableFromConfig(m map[string]int) RewardTable {
	out := make(RewardTable, len(DefaultRewards))
	for d, xp := range DefaultRewards {
		out[d] = xp
	}
	for k, xp := range m {
		d, err := ParseDifficulty(k)
		if err != nil || xp < 0 {
			continue
		}
		out[d] = xp
	}
	return out
}

func (r RewardTable) XPReward(d Difficulty) int {
	if xp, ok := r[d]; ok {
		return xp
	}
	return DefaultRewards[d]
}

// Objective is a long-running goal. Once completed it is immutable except
// for deletion.
type Objective struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	Difficulty      Difficulty `json:"difficulty"`
	IsCurrent       bool       `json:"isCurrent"`
	IsCompleted     bool       `json:"isCompleted"`
	CurrentProgress int        `json:"currentProgress"`
	TotalProgress   int        `json:"totalProgress"`
	XPReward        int        `json:"xpReward"`
	CreatedAt       time.Time  `json:"createdAt"`
	SelectedAt      time.Time  `json:"selectedAt"`
	CompletedAt     time.Time  `json:"completedAt"`
}

// GoldReward is twice the XP reward.
func (o Objective) GoldReward() int { return 2 * o.XPReward }

// Ready reports whether the objective can be completed.
func (o Objective) Ready() bool {
	return !o.IsCompleted && o.CurrentProgress >= o.TotalProgress
}

// Subtask is a unit of work owned by one objective.
type Subtask struct {
	ID                   string     `json:"id"`
	ObjectiveID          string     `json:"objectiveId"`
	Text                 string     `json:"text"`
	IsCompleted          bool       `json:"isCompleted"`
	XPReward             int        `json:"xpReward"`
	GoldReward           int        `json:"goldReward"`
	ProgressContribution int        `json:"progressContribution"`
	DueDate              daily.Date `json:"dueDate"`
	IsPunishment         bool       `json:"isPunishment"`
	Position             int        `json:"position"`
	CreatedAt            time.Time  `json:"createdAt"`

	// Reward actually granted by the last completion; undo deducts these.
	GrantedXP     int  `json:"grantedXp"`
	GrantedGold   int  `json:"grantedGold"`
	EverCompleted bool `json:"everCompleted"`
}

// ObjectiveInput is the user-supplied part of a new objective.
type ObjectiveInput struct {
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	Difficulty    Difficulty `json:"difficulty"`
	TotalProgress int        `json:"totalProgress"`
}

func (in *ObjectiveInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if in.Name == "" {
		return apperr.Invalid("name", "is required")
	}
	if in.TotalProgress <= 0 {
		return apperr.Invalid("totalProgress", "must be positive")
	}
	d, err := ParseDifficulty(string(in.Difficulty))
	if err != nil {
		return err
	}
	in.Difficulty = d
	return nil
}

// SubtaskInput is the user-supplied part of a new subtask.
type SubtaskInput struct {
	Text                 string     `json:"text"`
	XPReward             int        `json:"xpReward"`
	GoldReward           int        `json:"goldReward"`
	ProgressContribution int        `json:"progressContribution"`
	DueDate              daily.Date `json:"dueDate"`
	IsPunishment         bool       `json:"isPunishment"`
}

func (in *SubtaskInput) normalize() error {
	in.Text = strings.TrimSpace(in.Text)
	switch {
	case in.Text == "":
		return apperr.Invalid("text", "is required")
	case in.XPReward < 0:
		return apperr.Invalid("xpReward", "must not be negative")
	case in.GoldReward < 0:
		return apperr.Invalid("goldReward", "must not be negative")
	case in.ProgressContribution < 0:
		return apperr.Invalid("progressContribution", "must not be negative")
	case !in.DueDate.IsZero() && !in.DueDate.Valid():
		return apperr.Invalid("dueDate", "must be YYYY-MM-DD")
	}
	if in.IsPunishment {
		in.XPReward, in.GoldReward, in.ProgressContribution = 0, 0, 0
	}
	return nil
}

// SubtaskPatch edits a subtask. Nil fields are left untouched.
type SubtaskPatch struct {
	Text                 *string     `json:"text"`
	XPReward             *int        `json:"xpReward"`
	GoldReward           *int        `json:"goldReward"`
	ProgressContribution *int        `json:"progressContribution"`
	DueDate              *daily.Date `json:"dueDate"`
}

func (p SubtaskPatch) touchesRewards() bool {
	return p.XPReward != nil || p.GoldReward != nil || p.ProgressContribution != nil
}
