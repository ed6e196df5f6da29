// Package progression holds the player stats ledger and the pure rules that
// turn completion events into the next ledger. Nothing here performs I/O.
package progression

import (
	"sort"
	"time"

	"github.com/Fixen7/lifequest-app/apperr"
	"github.com/Fixen7/lifequest-app/game/daily"
)

const (
	// HistoryCap bounds SatisfactionHistory to the most recent entries.
	HistoryCap = 30

	MaxSatisfaction = 100
)

// SatisfactionSample is one per-day satisfaction reading.
type SatisfactionSample struct {
	Date  daily.Date `json:"date"`
	Value int        `json:"value"`
}

// Ledger is the player's progression aggregate. It is passed by value
// through the rule functions; callers keep the returned copy.
type Ledger struct {
	Level                int                  `json:"level"`
	XP                   int                  `json:"xp"`
	XPToNextLevel        int                  `json:"xpToNextLevel"`
	Gold                 int                  `json:"gold"`
	Vitality             int                  `json:"vitality"`
	MaxVitality          int                  `json:"maxVitality"`
	CurrentSatisfaction  int                  `json:"currentSatisfaction"`
	SatisfactionHistory  []SatisfactionSample `json:"satisfactionHistory"`
	LastDailyRewardClaim time.Time            `json:"lastDailyRewardClaim"`
	CurrentStreak        int                  `json:"currentStreak"`
	LongestStreak        int                  `json:"longestStreak"`
	LastStreakDate       daily.Date           `json:"lastStreakDate"`
	Achievements         []string             `json:"achievements"`
	HasCompletedTutorial bool                 `json:"hasCompletedTutorial"`
	PomodoroCount        int                  `json:"pomodoroCount"`
	DailyDesireCount     int                  `json:"dailyDesireCount"`
}

// Defaults are the starting values of a freshly created ledger.
type Defaults struct {
	XPToNextLevel int
	MaxVitality   int
	Satisfaction  int
}

var StandardDefaults = Defaults{XPToNextLevel: 100, MaxVitality: 100, Satisfaction: 50}

// NewLedger returns the ledger created on first access.
func NewLedger(d Defaults) Ledger {
	if d.XPToNextLevel <= 0 {
		d.XPToNextLevel = StandardDefaults.XPToNextLevel
	}
	if d.MaxVitality <= 0 {
		d.MaxVitality = StandardDefaults.MaxVitality
	}
	return Ledger{
		Level:               1,
		XPToNextLevel:       d.XPToNextLevel,
		Vitality:            d.MaxVitality,
		MaxVitality:         d.MaxVitality,
		CurrentSatisfaction: clamp(d.Satisfaction, 0, MaxSatisfaction),
		SatisfactionHistory: []SatisfactionSample{},
		Achievements:        []string{},
	}
}

// Clone returns a deep copy; the slices of the result share nothing with l.
func (l Ledger) Clone() Ledger {
	out := l
	out.SatisfactionHistory = append([]SatisfactionSample(nil), l.SatisfactionHistory...)
	out.Achievements = append([]string(nil), l.Achievements...)
	return out
}

// HasAchievement reports whether id is unlocked.
func (l Ledger) HasAchievement(id string) bool {
	i := sort.SearchStrings(l.Achievements, id)
	return i < len(l.Achievements) && l.Achievements[i] == id
}

// Unlock adds the given ids to the achievement set.
func Unlock(l Ledger, ids ...string) Ledger {
	if len(ids) == 0 {
		return l
	}
	l = l.Clone()
	l.Achievements = append(l.Achievements, ids...)
	l.Achievements = uniqueSorted(l.Achievements)
	return l
}

// Validate checks the ledger invariants.
func (l Ledger) Validate() error {
	switch {
	case l.Level < 1:
		return apperr.Invalid("level", "must be at least 1")
	case l.XPToNextLevel <= 0:
		return apperr.Invalid("xpToNextLevel", "must be positive")
	case l.XP < 0 || l.XP >= l.XPToNextLevel:
		return apperr.Invalid("xp", "must be in [0, xpToNextLevel)")
	case l.Gold < 0:
		return apperr.Invalid("gold", "must not be negative")
	case l.MaxVitality <= 0:
		return apperr.Invalid("maxVitality", "must be positive")
	case l.Vitality < 0 || l.Vitality > l.MaxVitality:
		return apperr.Invalid("vitality", "must be in [0, maxVitality]")
	case l.CurrentSatisfaction < 0 || l.CurrentSatisfaction > MaxSatisfaction:
		return apperr.Invalid("currentSatisfaction", "must be in [0, 100]")
	case len(l.SatisfactionHistory) > HistoryCap:
		return apperr.Invalid("satisfactionHistory", "exceeds cap")
	case l.CurrentStreak < 0:
		return apperr.Invalid("currentStreak", "must not be negative")
	case l.PomodoroCount < 0 || l.DailyDesireCount < 0:
		return apperr.Invalid("counters", "must not be negative")
	}
	seen := make(map[daily.Date]bool, len(l.SatisfactionHistory))
	for _, s := range l.SatisfactionHistory {
		if seen[s.Date] {
			return apperr.Invalid("satisfactionHistory", "duplicate day "+s.Date.String())
		}
		seen[s.Date] = true
	}
	return nil
}

// Normalize repairs a ledger received from outside (e.g. a store snapshot)
// so every invariant holds again. Overflowing XP is cascaded into levels.
func Normalize(l Ledger) Ledger {
	l = l.Clone()
	if l.Level < 1 {
		l.Level = 1
	}
	if l.XPToNextLevel <= 0 {
		l.XPToNextLevel = StandardDefaults.XPToNextLevel
	}
	if l.MaxVitality <= 0 {
		l.MaxVitality = StandardDefaults.MaxVitality
	}
	if l.XP < 0 {
		l.XP = 0
	}
	l, _ = levelCascade(l)
	l.Gold = max(l.Gold, 0)
	l.Vitality = clamp(l.Vitality, 0, l.MaxVitality)
	l.CurrentSatisfaction = clamp(l.CurrentSatisfaction, 0, MaxSatisfaction)
	l.CurrentStreak = max(l.CurrentStreak, 0)
	l.LongestStreak = max(l.LongestStreak, l.CurrentStreak)
	l.PomodoroCount = max(l.PomodoroCount, 0)
	l.DailyDesireCount = max(l.DailyDesireCount, 0)
	l.SatisfactionHistory = normalizeHistory(l.SatisfactionHistory)
	if l.Achievements == nil {
		l.Achievements = []string{}
	}
	l.Achievements = uniqueSorted(l.Achievements)
	return l
}

// normalizeHistory keeps the last sample per day in chronological order,
// clamps values and applies the cap.
func normalizeHistory(in []SatisfactionSample) []SatisfactionSample {
	byDay := make(map[daily.Date]int, len(in))
	for _, s := range in {
		if s.Date.IsZero() {
			continue
		}
		byDay[s.Date] = clamp(s.Value, 0, MaxSatisfaction)
	}
	out := make([]SatisfactionSample, 0, len(byDay))
	for d, v := range byDay {
		out = append(out, SatisfactionSample{Date: d, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	if len(out) > HistoryCap {
		out = out[len(out)-HistoryCap:]
	}
	return out
}

func uniqueSorted(ids []string) []string {
	sort.Strings(ids)
	n := 0
	for _, id := range ids {
		if id == "" || (n > 0 && id == ids[n-1]) {
			continue
		}
		ids[n] = id
		n++
	}
	return ids[:n]
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
