package achievement

// Trigger names the event kind an achievement listens to.
type Trigger string

const (
	TriggerObjectiveCompleted Trigger = "objective_completed"
	TriggerLevel              Trigger = "level"
	TriggerStreak             Trigger = "streak"
	TriggerPomodoro           Trigger = "pomodoro"
	TriggerDailyDesire        Trigger = "daily_desire"
)

// Achievement is a static badge rule. Only unlocked ids are persisted.
type Achievement struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Icon        string  `json:"icon"`
	Trigger     Trigger `json:"triggerType"`
	Threshold   int     `json:"threshold"`
}

// Table is the built-in rule table.
var Table = []Achievement{
	// objective completions
	{ID: "first_quest", Name: "First Quest", Description: "Complete your first objective", Icon: "🗺️", Trigger: TriggerObjectiveCompleted, Threshold: 1},
	{ID: "quest_hunter", Name: "Quest Hunter", Description: "Complete 5 objectives", Icon: "🏹", Trigger: TriggerObjectiveCompleted, Threshold: 5},
	{ID: "legend", Name: "Legend", Description: "Complete 25 objectives", Icon: "🏆", Trigger: TriggerObjectiveCompleted, Threshold: 25},

	// levels
	{ID: "level_5", Name: "Getting Started", Description: "Reach level 5", Icon: "🌿", Trigger: TriggerLevel, Threshold: 5},
	{ID: "level_10", Name: "Seasoned", Description: "Reach level 10", Icon: "⭐", Trigger: TriggerLevel, Threshold: 10},
	{ID: "level_20", Name: "Master", Description: "Reach level 20", Icon: "💫", Trigger: TriggerLevel, Threshold: 20},

	// streaks
	{ID: "streak_3", Name: "On a Roll", Description: "Keep a 3 day streak", Icon: "🔥", Trigger: TriggerStreak, Threshold: 3},
	{ID: "streak_7", Name: "Week Warrior", Description: "Keep a 7 day streak", Icon: "📅", Trigger: TriggerStreak, Threshold: 7},
	{ID: "streak_30", Name: "Unstoppable", Description: "Keep a 30 day streak", Icon: "🌋", Trigger: TriggerStreak, Threshold: 30},

	// pomodoros
	{ID: "pomodoro_1", Name: "Focused", Description: "Finish a pomodoro", Icon: "🍅", Trigger: TriggerPomodoro, Threshold: 1},
	{ID: "pomodoro_25", Name: "Deep Worker", Description: "Finish 25 pomodoros", Icon: "⏱️", Trigger: TriggerPomodoro, Threshold: 25},

	// daily desires
	{ID: "desire_1", Name: "Treat Yourself", Description: "Complete a daily desire", Icon: "✨", Trigger: TriggerDailyDesire, Threshold: 1},
	{ID: "desire_10", Name: "Self Care", Description: "Complete 10 daily desires", Icon: "💖", Trigger: TriggerDailyDesire, Threshold: 10},
}

// Lookup returns the rule with the given id.
func Lookup(id string) (Achievement, bool) {
	for _, a := range Table {
		if a.ID == id {
			return a, true
		}
	}
	return Achievement{}, false
}
