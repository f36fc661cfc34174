package authstate

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/MrEthical07/docportal"
	"github.com/MrEthical07/docportal/jwt"
)

// Persisted is the session blob as the vendor SDK stores it. It is also the
// body of a token grant response. ExpiresAt is unix seconds.
type Persisted struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

type User struct {
	ID         string            `json:"id"`
	Email      string            `json:"email"`
	Identities []json.RawMessage `json:"identities,omitempty"`
}

// FromSession converts sess to the persisted layout.
func FromSession(sess *docportal.BackendSession) Persisted {
	return Persisted{
		AccessToken:  sess.AccessToken,
		TokenType:    "bearer",
		ExpiresAt:    sess.ExpiresAt.Unix(),
		RefreshToken: sess.RefreshToken,
		User:         User{ID: sess.User.ID, Email: sess.User.Email},
	}
}

// Session converts p back. Expiry comes from expires_at, then expires_in
// relative to now, then the access token's exp claim; a missing user is
// taken from the token's sub and email claims.
func (p Persisted) Session(now time.Time) (*docportal.BackendSession, error) {
	if p.AccessToken == "" {
		return nil, errors.New("session without access token")
	}
	out := &docportal.BackendSession{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		User:         docportal.Identity{ID: p.User.ID, Email: p.User.Email},
	}
	switch {
	case p.ExpiresAt > 0:
		out.ExpiresAt = time.Unix(p.ExpiresAt, 0)
	case p.ExpiresIn > 0:
		out.ExpiresAt = now.Add(time.Duration(p.ExpiresIn) * time.Second)
	}

	if out.ExpiresAt.IsZero() || out.User.ID == "" {
		claims, err := jwt.PeekClaims(p.AccessToken)
		if err != nil {
			return nil, err
		}
		if out.ExpiresAt.IsZero() {
			out.ExpiresAt = claims.Expiry()
		}
		if out.User.ID == "" {
			out.User = docportal.Identity{ID: claims.UserID(), Email: claims.Email}
		}
	}
	if out.User.ID == "" {
		return nil, errors.New("session without user id")
	}
	return out, nil
}
