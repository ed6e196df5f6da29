package progression

import (
	"time"

	"github.com/Fixen7/lifequest-app/game/daily"
)

// Outcome carries the side-signals of a rule application. None of it is
// stored on the ledger.
type Outcome struct {
	LevelUps       []int // each level reached, in order
	NeedsRest      bool  // vitality reached zero
	StreakAdvanced bool  // streak counter changed today
	Claimed        bool  // daily reward granted
	Cooldown       time.Duration
}

func (o *Outcome) merge(other Outcome) {
	o.LevelUps = append(o.LevelUps, other.LevelUps...)
	o.NeedsRest = o.NeedsRest || other.NeedsRest
	o.StreakAdvanced = o.StreakAdvanced || other.StreakAdvanced
	o.Claimed = o.Claimed || other.Claimed
	if other.Cooldown > 0 {
		o.Cooldown = other.Cooldown
	}
}

// GrantXP adds XP and cascades level-ups. A negative amount deducts instead.
func GrantXP(l Ledger, amount int) (Ledger, Outcome) {
	if amount < 0 {
		return DeductXP(l, -amount), Outcome{}
	}
	l.XP += amount
	return levelCascade(l)
}

func levelCascade(l Ledger) (Ledger, Outcome) {
	var out Outcome
	for l.XP >= l.XPToNextLevel {
		l.XP -= l.XPToNextLevel
		l.Level++
		l.XPToNextLevel = max(l.XPToNextLevel*3/2, l.XPToNextLevel)
		out.LevelUps = append(out.LevelUps, l.Level)
	}
	return l, out
}

// DeductXP removes XP without ever lowering the level.
func DeductXP(l Ledger, amount int) Ledger {
	if amount < 0 {
		amount = -amount
	}
	l.XP = max(l.XP-amount, 0)
	return l
}

// AddGold adds currency; a negative amount deducts.
func AddGold(l Ledger, amount int) Ledger {
	l.Gold = max(l.Gold+amount, 0)
	return l
}

// DeductGold removes currency, clamping at zero.
func DeductGold(l Ledger, amount int) Ledger {
	if amount < 0 {
		amount = -amount
	}
	return AddGold(l, -amount)
}

// AdjustVitality moves vitality by delta within [0, MaxVitality].
// Hitting zero only raises the NeedsRest signal.
func AdjustVitality(l Ledger, delta int) (Ledger, Outcome) {
	l.Vitality = clamp(l.Vitality+delta, 0, l.MaxVitality)
	return l, Outcome{NeedsRest: l.Vitality == 0}
}

// RecordSatisfaction upserts today's sample and keeps the last HistoryCap days.
func RecordSatisfaction(l Ledger, value int, today daily.Date) Ledger {
	l = l.Clone()
	value = clamp(value, 0, MaxSatisfaction)
	l.CurrentSatisfaction = value

	replaced := false
	for i := range l.SatisfactionHistory {
		if l.SatisfactionHistory[i].Date == today {
			l.SatisfactionHistory[i].Value = value
			replaced = true
			break
		}
	}
	if !replaced {
		l.SatisfactionHistory = append(l.SatisfactionHistory, SatisfactionSample{Date: today, Value: value})
	}
	if n := len(l.SatisfactionHistory); n > HistoryCap {
		l.SatisfactionHistory = append([]SatisfactionSample(nil), l.SatisfactionHistory[n-HistoryCap:]...)
	}
	return l
}

// EvaluateStreak counts today at most once.
func EvaluateStreak(l Ledger, today daily.Date) (Ledger, Outcome) {
	switch daily.StreakStepFor(l.LastStreakDate, today) {
	case daily.StreakUnchanged:
		return l, Outcome{}
	case daily.StreakContinued:
		l.CurrentStreak++
	default:
		l.CurrentStreak = 1
	}
	l.LastStreakDate = today
	l.LongestStreak = max(l.LongestStreak, l.CurrentStreak)
	return l, Outcome{StreakAdvanced: true}
}

// ClaimDailyReward grants xp and gold if 24h have passed since the last
// claim. An early claim is a no-op reporting the remaining cooldown.
func ClaimDailyReward(l Ledger, now time.Time, xp, gold int) (Ledger, Outcome) {
	if remaining := daily.RewardCooldown(l.LastDailyRewardClaim, now); remaining > 0 {
		return l, Outcome{Cooldown: remaining}
	}
	l, out := GrantXP(l, xp)
	l = AddGold(l, gold)
	l.LastDailyRewardClaim = now
	out.Claimed = true
	return l, out
}
