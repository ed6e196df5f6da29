package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Fixen7/lifequest-app/apperr"
	"github.com/Fixen7/lifequest-app/game/daily"
	"github.com/Fixen7/lifequest-app/game/progression"
	"github.com/Fixen7/lifequest-app/game/quest"
)

const (
	MaxSuggestions = 8

	maxSuggestedXP   = 500
	maxSuggestedGold = 250
	maxDesireMinutes = 240
)

const systemPrompt = "You are the game master of a self-improvement RPG. " +
	"Reply with a single JSON object and nothing else."

// structured asks for a JSON object and unmarshals it into out.
func (c *Client) structured(ctx context.Context, op, prompt string, out any) error {
	text, err := c.GenerateText(ctx, TextRequest{System: systemPrompt, Prompt: prompt, JSON: true, MaxTokens: 800})
	if err != nil {
		var xe *apperr.ExternalServiceError
		if errors.As(err, &xe) {
			xe.Op = op
		}
		return err
	}
	text = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(text, "```json"), "```"))
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return &apperr.ExternalServiceError{Op: op, Err: fmt.Errorf("malformed payload: %w", err)}
	}
	return nil
}

type suggestionPayload struct {
	Subtasks []struct {
		Text                 string `json:"text"`
		XPReward             int    `json:"xpReward"`
		GoldReward           int    `json:"goldReward"`
		ProgressContribution int    `json:"progressContribution"`
	} `json:"subtasks"`
}

// SuggestSubtasks proposes up to n subtasks for an objective. Entries that
// fail validation reject the whole payload.
func (c *Client) SuggestSubtasks(ctx context.Context, o quest.Objective, n int) ([]quest.SubtaskInput, error) {
	const op = "suggest_subtasks"
	n = min(max(n, 1), MaxSuggestions)
	prompt := fmt.Sprintf(
		"Objective %q (%s difficulty): %s\nProgress %d of %d.\n"+
			"Suggest %d concrete subtasks as {\"subtasks\":[{\"text\":string,\"xpReward\":int,"+
			"\"goldReward\":int,\"progressContribution\":int}]}. Rewards between 5 and %d.",
		o.Name, o.Difficulty, o.Description, o.CurrentProgress, o.TotalProgress, n, maxSuggestedXP)

	var p suggestionPayload
	if err := c.structured(ctx, op, prompt, &p); err != nil {
		return nil, err
	}
	if len(p.Subtasks) == 0 {
		return nil, &apperr.ExternalServiceError{Op: op, Err: errors.New("no subtasks suggested")}
	}
	if len(p.Subtasks) > n {
		p.Subtasks = p.Subtasks[:n]
	}
	out := make([]quest.SubtaskInput, 0, len(p.Subtasks))
	for i, s := range p.Subtasks {
		in := quest.SubtaskInput{
			Text:                 strings.TrimSpace(s.Text),
			XPReward:             s.XPReward,
			GoldReward:           s.GoldReward,
			ProgressContribution: s.ProgressContribution,
		}
		switch {
		case in.Text == "":
			return nil, malformed(op, i, "empty text")
		case in.XPReward < 0 || in.XPReward > maxSuggestedXP:
			return nil, malformed(op, i, "xpReward out of range")
		case in.GoldReward < 0 || in.GoldReward > maxSuggestedGold:
			return nil, malformed(op, i, "goldReward out of range")
		case in.ProgressContribution < 0 || in.ProgressContribution > o.TotalProgress:
			return nil, malformed(op, i, "progressContribution out of range")
		}
		out = append(out, in)
	}
	return out, nil
}

type desirePayload struct {
	Text             string `json:"text"`
	XPReward         int    `json:"xpReward"`
	GoldReward       int    `json:"goldReward"`
	TimeLimitMinutes int    `json:"timeLimitMinutes"`
}

// Desire generates the daily desire for day. It satisfies
// daily.DesireGenerator.
func (c *Client) Desire(ctx context.Context, day daily.Date) (daily.Desire, error) {
	const op = "daily_desire"
	prompt := fmt.Sprintf(
		"Invent one small, pleasant self-care challenge for %s as "+
			"{\"text\":string,\"xpReward\":int,\"goldReward\":int,\"timeLimitMinutes\":int}. "+
			"xpReward 10-50, goldReward 5-25, timeLimitMinutes 5-%d.", day, maxDesireMinutes)

	var p desirePayload
	if err := c.structured(ctx, op, prompt, &p); err != nil {
		return daily.Desire{}, err
	}
	d := daily.Desire{
		Text:             strings.TrimSpace(p.Text),
		XPReward:         p.XPReward,
		GoldReward:       p.GoldReward,
		TimeLimitMinutes: p.TimeLimitMinutes,
		Date:             day,
	}
	if err := d.Validate(); err != nil {
		return daily.Desire{}, &apperr.ExternalServiceError{Op: op, Err: fmt.Errorf("malformed payload: %w", err)}
	}
	if d.TimeLimitMinutes > maxDesireMinutes {
		return daily.Desire{}, &apperr.ExternalServiceError{Op: op, Err: errors.New("malformed payload: time limit too long")}
	}
	return d, nil
}

// Illustrate renders a quest card image for an objective.
func (c *Client) Illustrate(ctx context.Context, o quest.Objective) (string, error) {
	prompt := fmt.Sprintf("Painted fantasy quest card for %q, a %s quest. %s No lettering.",
		o.Name, strings.ToLower(string(o.Difficulty)), strings.TrimSpace(o.Description))
	url, err := c.GenerateImage(ctx, prompt)
	if err != nil {
		var xe *apperr.ExternalServiceError
		if errors.As(err, &xe) {
			xe.Op = "illustrate"
		}
		return "", err
	}
	return url, nil
}

// Advice returns a short free-text coaching note based on the ledger.
func (c *Client) Advice(ctx context.Context, l progression.Ledger) (string, error) {
	prompt := fmt.Sprintf(
		"The player is level %d with %d/%d vitality, satisfaction %d/100 and a %d day streak. "+
			"Give two sentences of encouraging, practical advice.",
		l.Level, l.Vitality, l.MaxVitality, l.CurrentSatisfaction, l.CurrentStreak)
	text, err := c.GenerateText(ctx, TextRequest{Prompt: prompt, MaxTokens: 200})
	if err != nil {
		var xe *apperr.ExternalServiceError
		if errors.As(err, &xe) {
			xe.Op = "advice"
		}
		return "", err
	}
	return text, nil
}

func malformed(op string, i int, reason string) error {
	return &apperr.ExternalServiceError{Op: op, Err: fmt.Errorf("malformed payload: subtask %d: %s", i, reason)}
}
