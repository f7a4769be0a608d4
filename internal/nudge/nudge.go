package nudge

// Nudge is a user-defined recurring reminder.
//
// ScheduleText and NextReminderText are owner-computed presentation strings.
// They are regenerated whenever the schedule changes and are never consulted
// by the scheduling engine.
type Nudge struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Schedule    Schedule `json:"scheduleConfig"`

	ScheduleText     string `json:"schedule"`
	NextReminderText string `json:"nextReminder"`

	Active bool `json:"active"`
}

// DefaultBody is the notification body used when a nudge has no description.
const DefaultBody = "Time to act!"

// Defaults returns the seed collection used when the store is empty.
// IDs are zero; the collection owner assigns them on insert.
func Defaults() []Nudge {
	return []Nudge{
		{
			Title:       "Stand up and stretch",
			Description: "Sitting is the new smoking. Get up and move for a minute.",
			Schedule:    Schedule{Mode: ModeInterval, IntervalMinutes: 45},
			Active:      true,
		},
		{
			Title:       "Drink some water",
			Description: "Hydrate before you feel thirsty.",
			Schedule:    Schedule{Mode: ModeInterval, IntervalMinutes: 30},
			Active:      true,
		},
	}
}
