package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MrEthical07/docportal"
)

type sessionView struct {
	Identity        *docportal.Identity `json:"identity"`
	Role            docportal.Role      `json:"role"`
	Status          docportal.Status    `json:"status"`
	IsAuthenticated bool                `json:"is_authenticated"`
	IsAdmin         bool                `json:"is_admin"`
	Version         uint64              `json:"version"`
}

func newSessionView(s docportal.Snapshot) sessionView {
	return sessionView{
		Identity:        s.Identity,
		Role:            s.Role,
		Status:          s.Status,
		IsAuthenticated: s.IsAuthenticated(),
		IsAdmin:         s.IsAdmin(),
		Version:         s.Version,
	}
}

// streamMessage is one frame of the session stream.
type streamMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

const streamEventSession = "session"

func (h *Handler) session(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	writeSuccess(w, http.StatusOK, newSessionView(h.store.Snapshot()))
}

// sessionStream pushes the current snapshot and every later one over a
// websocket until the client goes away or the Store closes.
func (h *Handler) sessionStream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		h.logger.WarnContext(r.Context(), "session stream upgrade failed",
			"request_id", docportal.RequestIDFromContext(r.Context()),
			"error", err,
		)
		return
	}
	defer conn.Close()

	updates, cancel := h.store.Watch()
	defer cancel()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case snap, ok := <-updates:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session store closed"),
					time.Now().Add(h.wsWrite))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(h.wsWrite))
			if err := conn.WriteJSON(streamMessage{Event: streamEventSession, Data: newSessionView(snap)}); err != nil {
				h.logger.DebugContext(r.Context(), "session stream write failed", "error", err)
				return
			}
		}
	}
}

func (h *Handler) recheck(w http.ResponseWriter, r *http.Request) {
	h.store.RecheckAsync(r.Context())
	writeMessage(w, http.StatusAccepted, "session re-check scheduled")
}
