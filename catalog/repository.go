package catalog

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("catalog: not found")
	ErrInvalid  = errors.New("catalog: invalid input")
	// ErrForbidden is returned when the backend's access policy rejects a
	// write.
	ErrForbidden = errors.New("catalog: forbidden")
	// ErrUnavailable wraps storage transport failures.
	ErrUnavailable = errors.New("catalog: storage unavailable")
)

// DefaultActivityLimit is used by RecentActivity when limit is not positive.
const DefaultActivityLimit = 5

// Repository is the catalog persistence contract. Implementations return
// ErrNotFound for missing rows and errors matching ErrInvalid for rejected
// input, including references to a missing parent.
type Repository interface {
	ListPeriods(ctx context.Context) ([]Period, error)
	GetPeriod(ctx context.Context, id string) (Period, error)
	CreatePeriod(ctx context.Context, in PeriodInput) (Period, error)
	UpdatePeriod(ctx context.Context, id string, in PeriodInput) (Period, error)
	DeletePeriod(ctx context.Context, id string) error

	ListEvents(ctx context.Context) ([]Event, error)
	EventsByPeriod(ctx context.Context, periodID string) ([]Event, error)
	GetEvent(ctx context.Context, id string) (EventDetail, error)
	CreateEvent(ctx context.Context, in EventInput) (Event, error)
	UpdateEvent(ctx context.Context, id string, in EventInput) (Event, error)
	DeleteEvent(ctx context.Context, id string) error

	ListLinks(ctx context.Context) ([]ResourceLink, error)
	LinksByEvent(ctx context.Context, eventID string) ([]ResourceLink, error)
	CreateLink(ctx context.Context, in LinkInput) (ResourceLink, error)
	UpdateLink(ctx context.Context, id string, in LinkInput) (ResourceLink, error)
	DeleteLink(ctx context.Context, id string) error

	Stats(ctx context.Context) (Stats, error)
	RecentActivity(ctx context.Context, limit int) ([]Activity, error)
}
