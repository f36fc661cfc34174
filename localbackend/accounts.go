package localbackend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/docportal"
)

var errAccountNotFound = errors.New("account not found")

type account struct {
	ID           string `redis:"id"`
	Email        string `redis:"email"`
	PasswordHash string `redis:"password_hash"`
	CreatedAt    int64  `redis:"created_at"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (b *Backend) emailKey(email string) string { return b.cfg.Prefix + ":email:" + email }
func (b *Backend) accountKey(id string) string { return b.cfg.Prefix + ":user:" + id }
func (b *Backend) roleKey(id string) string { return b.cfg.Prefix + ":role:" + id }

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", docportal.ErrBackendUnavailable, err)
}

func (b *Backend) lookupAccount(ctx context.Context, email string) (*account, error) {
	id, err := b.redis.Get(ctx, b.emailKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errAccountNotFound
		}
		return nil, unavailable(err)
	}

	var acct account
	cmd := b.redis.HGetAll(ctx, b.accountKey(id))
	if err := cmd.Err(); err != nil {
		return nil, unavailable(err)
	}
	if len(cmd.Val()) == 0 {
		return nil, errAccountNotFound
	}
	if err := cmd.Scan(&acct); err != nil {
		return nil, unavailable(err)
	}
	return &acct, nil
}

// createAccount claims the email and stores the account. The email claim is
// the uniqueness check.
func (b *Backend) createAccount(ctx context.Context, email, hash string) (*account, error) {
	acct := &account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    b.now().Unix(),
	}

	claimed, err := b.redis.SetNX(ctx, b.emailKey(email), acct.ID, 0).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if !claimed {
		return nil, docportal.ErrAccountExists
	}

	if err := b.redis.HSet(ctx, b.accountKey(acct.ID), acct).Err(); err != nil {
		// Release the claim so the address can be retried.
		b.redis.Del(context.WithoutCancel(ctx), b.emailKey(email))
		return nil, unavailable(err)
	}
	return acct, nil
}

func (b *Backend) upgradeHash(ctx context.Context, acct *account, pw string) {
	needs, err := b.hasher.NeedsUpgrade(acct.PasswordHash)
	if err != nil || !needs {
		return
	}
	hash, err := b.hasher.Hash(pw)
	if err != nil {
		return
	}
	if err := b.redis.HSet(ctx, b.accountKey(acct.ID), "password_hash", hash).Err(); err != nil {
		b.logger.Warn("password hash upgrade failed", "user_id", acct.ID, "error", err)
	}
}

/* ==== USER RECORDS ==== */

// GetRole reads the role record for userID.
func (b *Backend) GetRole(ctx context.Context, userID string) (docportal.Role, bool, error) {
	v, err := b.redis.Get(ctx, b.roleKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, unavailable(err)
	}
	return docportal.ParseRole(v), true, nil
}

// InsertUser creates the role record. An existing record is left as is.
func (b *Backend) InsertUser(ctx context.Context, identity docportal.Identity, role docportal.Role) error {
	if err := b.redis.SetNX(ctx, b.roleKey(identity.ID), string(role), 0).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// SetRole overwrites the role record for userID.
func (b *Backend) SetRole(ctx context.Context, userID string, role docportal.Role) error {
	if err := b.redis.Set(ctx, b.roleKey(userID), string(role), 0).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// EnsureUser creates an account with role unless email is already
// registered. It is used to seed accounts at startup and never touches the
// client session.
func (b *Backend) EnsureUser(ctx context.Context, email, pw string, role docportal.Role) (docportal.Identity, error) {
	id, err := b.SignUp(ctx, email, pw)
	switch {
	case errors.Is(err, docportal.ErrAccountExists):
		acct, lerr := b.lookupAccount(ctx, normalizeEmail(email))
		if lerr != nil {
			return docportal.Identity{}, lerr
		}
		return docportal.Identity{ID: acct.ID, Email: acct.Email}, nil
	case err != nil:
		return docportal.Identity{}, err
	}
	if err := b.SetRole(ctx, id.ID, role); err != nil {
		return docportal.Identity{}, err
	}
	return id, nil
}

// RevokeUser deletes every refresh session of userID. A client holding one of
// them loses its session on the next check.
func (b *Backend) RevokeUser(ctx context.Context, userID string) (int, error) {
	n, err := b.sessions.DeleteAllForUser(ctx, userID)
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}
