package httpapi

import (
	"net/http"

	"github.com/MrEthical07/docportal"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Session     sessionView `json:"session"`
	Destination string      `json:"destination"`
}

type logoutResponse struct {
	Destination string `json:"destination"`
}

type signupResponse struct {
	Identity docportal.Identity `json:"identity"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeValidationError(r.Context(), w, "login", err)
		return
	}

	res, err := h.store.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeMappedError(r.Context(), w, "login", err)
		return
	}
	writeSuccess(w, http.StatusOK, loginResponse{
		Session:     newSessionView(res.Snapshot),
		Destination: res.Destination,
	})
}

// logout always succeeds; remote sign-out failures are swallowed by the Store.
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	dest := h.store.Logout(r.Context())
	writeSuccess(w, http.StatusOK, logoutResponse{Destination: dest})
}

func (h *Handler) signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeValidationError(r.Context(), w, "signup", err)
		return
	}

	id, err := h.store.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeMappedError(r.Context(), w, "signup", err)
		return
	}
	writeSuccess(w, http.StatusCreated, signupResponse{Identity: id})
}
