package catalog

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	maxNameLen        = 200
	maxDescriptionLen = 10000
	maxURLLen         = 2048
)

// ValidationError reports the first rejected field. It matches ErrInvalid.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("catalog: %s %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalid
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// ValidatePeriod trims in in place and checks it.
func ValidatePeriod(in *PeriodInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.StartDate = strings.TrimSpace(in.StartDate)
	in.EndDate = strings.TrimSpace(in.EndDate)

	if err := requireText("name", in.Name, maxNameLen); err != nil {
		return err
	}
	start, err := time.Parse(DateLayout, in.StartDate)
	if err != nil {
		return invalid("start_date", "must be a YYYY-MM-DD date")
	}
	end, err := time.Parse(DateLayout, in.EndDate)
	if err != nil {
		return invalid("end_date", "must be a YYYY-MM-DD date")
	}
	if end.Before(start) {
		return invalid("end_date", "must not be before start_date")
	}
	return nil
}

func ValidateEvent(in *EventInput) error {
	in.Title = strings.TrimSpace(in.Title)
	in.PeriodID = strings.TrimSpace(in.PeriodID)

	if err := requireText("title", in.Title, maxNameLen); err != nil {
		return err
	}
	if len(in.Description) > maxDescriptionLen {
		return invalid("description", "is too long")
	}
	if in.PeriodID == "" {
		return invalid("period_id", "is required")
	}
	return nil
}

// ValidateLink requires an absolute http or https URL.
func ValidateLink(in *LinkInput) error {
	in.Title = strings.TrimSpace(in.Title)
	in.URL = strings.TrimSpace(in.URL)
	in.EventID = strings.TrimSpace(in.EventID)

	if err := requireText("title", in.Title, maxNameLen); err != nil {
		return err
	}
	if in.URL == "" {
		return invalid("url", "is required")
	}
	if len(in.URL) > maxURLLen {
		return invalid("url", "is too long")
	}
	u, err := url.Parse(in.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("url", "must be an absolute http(s) URL")
	}
	if in.EventID == "" {
		return invalid("event_id", "is required")
	}
	return nil
}

func requireText(field, v string, max int) error {
	if v == "" {
		return invalid(field, "is required")
	}
	if len(v) > max {
		return invalid(field, "is too long")
	}
	return nil
}
