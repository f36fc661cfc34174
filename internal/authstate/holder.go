package authstate

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrEthical07/docportal"
	"github.com/MrEthical07/docportal/credstore"
)

// Holder caches the persisted session of one storage key. The blob is read
// from storage once; later reads are served from memory.
type Holder struct {
	kv     credstore.KV
	key    string
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	current *docportal.BackendSession
	loaded  bool
}

func NewHolder(kv credstore.KV, key string, logger *slog.Logger) *Holder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Holder{kv: kv, key: key, logger: logger, now: time.Now}
}

func (h *Holder) Key() string {
	return h.key
}

// Load returns the persisted session or nil. A corrupt blob is removed and
// treated as no session.
func (h *Holder) Load(ctx context.Context) (*docportal.BackendSession, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.loaded {
		return h.current, nil
	}

	raw, err := h.kv.Get(ctx, h.key)
	switch {
	case errors.Is(err, credstore.ErrNotFound):
		h.current, h.loaded = nil, true
		return nil, nil
	case err != nil:
		return nil, err
	}

	sess, perr := decode(raw, h.now())
	if perr != nil {
		h.logger.Warn("discarding unreadable stored session", "key", h.key, "error", perr)
		if err := h.kv.Delete(ctx, h.key); err != nil {
			return nil, err
		}
		sess = nil
	}
	h.current, h.loaded = sess, true
	return sess, nil
}

func decode(raw string, now time.Time) (*docportal.BackendSession, error) {
	var p Persisted
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, err
	}
	return p.Session(now)
}

func (h *Holder) Save(ctx context.Context, sess *docportal.BackendSession) error {
	blob, err := json.Marshal(FromSession(sess))
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.kv.Set(ctx, h.key, string(blob)); err != nil {
		return err
	}
	h.current, h.loaded = sess, true
	return nil
}

// Clear drops the session. Memory is cleared even when the storage delete
// fails.
func (h *Holder) Clear(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current, h.loaded = nil, true
	return h.kv.Delete(ctx, h.key)
}
