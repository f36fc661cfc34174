package supabase

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/MrEthical07/docportal"
)

// APIError is a non-2xx response from GoTrue or PostgREST. It unwraps to the
// docportal sentinel the status and code map to, when there is one.
type APIError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("supabase: %d %s: %s", e.Status, e.Code, msg)
	}
	return fmt.Sprintf("supabase: %d: %s", e.Status, msg)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// GoTrue reports {code:int, error_code, msg} or the older
// {error, error_description}; PostgREST reports {code:string, message}.
type errorBody struct {
	Code             json.RawMessage `json:"code"`
	ErrorCode        string          `json:"error_code"`
	Msg              string          `json:"msg"`
	Message          string          `json:"message"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

var credentialCodes = map[string]bool{
	"bad_jwt":                    true,
	"no_authorization":           true,
	"session_not_found":          true,
	"session_expired":            true,
	"refresh_token_not_found":    true,
	"refresh_token_already_used": true,
	"user_not_found":             true,
	"PGRST301":                   true,
	"PGRST302":                   true,
	"PGRST303":                   true,
}

func parseAPIError(status int, body []byte) *APIError {
	e := &APIError{Status: status}

	var b errorBody
	if json.Unmarshal(body, &b) == nil {
		var code string
		switch {
		case b.ErrorCode != "":
			code = b.ErrorCode
		case len(b.Code) > 0 && b.Code[0] == '"':
			_ = json.Unmarshal(b.Code, &code)
		case b.Error != "":
			code = b.Error
		}
		e.Code = code
		e.Message = firstNonEmpty(b.Msg, b.Message, b.ErrorDescription)
	}

	switch {
	case status == http.StatusUnauthorized,
		credentialCodes[e.Code],
		strings.Contains(e.Message, "JWT"):
		e.Err = docportal.ErrCredentialInvalid
	case status == http.StatusTooManyRequests:
		e.Err = docportal.ErrRateLimited
	case status >= 500:
		e.Err = docportal.ErrBackendUnavailable
	}
	return e
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
