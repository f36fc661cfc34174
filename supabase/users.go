package supabase

import (
	"context"
	"net/http"
	"net/url"

	"github.com/MrEthical07/docportal"
)

type userRow struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// GetRole reads the role column of the user-record table. found is false when
// no row exists for userID.
func (c *Client) GetRole(ctx context.Context, userID string) (docportal.Role, bool, error) {
	var rows []userRow
	_, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/rest/v1/" + c.cfg.UsersTable,
		query: url.Values{
			"select": {"role"},
			"id":     {"eq." + userID},
			"limit":  {"1"},
		},
		bearer: c.accessToken(ctx),
	}, &rows)
	if err != nil {
		return "", false, err
	}
	if len(rows) == 0 {
		return "", false, nil
	}
	return docportal.ParseRole(rows[0].Role), true, nil
}

// InsertUser creates the user-record row. A row that already exists is not
// an error.
func (c *Client) InsertUser(ctx context.Context, identity docportal.Identity, role docportal.Role) error {
	_, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/rest/v1/" + c.cfg.UsersTable,
		body:   userRow{ID: identity.ID, Email: identity.Email, Role: string(role)},
		bearer: c.accessToken(ctx),
		header: http.Header{"Prefer": {"return=minimal,resolution=ignore-duplicates"}},
	}, nil)
	if apiErr, ok := asAPIError(err); ok && (apiErr.Status == http.StatusConflict || apiErr.Code == "23505") {
		return nil
	}
	return err
}
