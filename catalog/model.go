package catalog

import "time"

// DateLayout is the calendar-date format used for period bounds.
const DateLayout = "2006-01-02"

type Period struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartDate string    `json:"start_date"`
	EndDate   string    `json:"end_date"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	PeriodID    string    `json:"period_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ResourceLink struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	EventID   string    `json:"event_id"`
	CreatedAt time.Time `json:"created_at"`
}

// EventDetail is an event with its period's name and its links.
type EventDetail struct {
	Event
	PeriodName string         `json:"period_name"`
	Links      []ResourceLink `json:"links"`
}

type Stats struct {
	TotalPeriods int64 `json:"total_periods"`
	TotalEvents  int64 `json:"total_events"`
	TotalLinks   int64 `json:"total_links"`
}

// ActivityKind names the entity type behind an Activity entry.
type ActivityKind string

const (
	ActivityPeriod ActivityKind = "period"
	ActivityEvent  ActivityKind = "event"
	ActivityLink   ActivityKind = "link"
)

// Activity is one recently created catalog entry.
type Activity struct {
	Kind      ActivityKind `json:"kind"`
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	CreatedAt time.Time    `json:"created_at"`
}

// PeriodInput carries the writable fields of a Period. Updates replace every
// field.
type PeriodInput struct {
	Name      string `json:"name"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	IsActive  bool   `json:"is_active"`
}

type EventInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	PeriodID    string `json:"period_id"`
}

type LinkInput struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	EventID string `json:"event_id"`
}
