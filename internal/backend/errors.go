package backend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// ErrNoSession is returned by calls that need a signed-in user.
var ErrNoSession = errors.New("not signed in")

// ServiceError is an error reported by the hosted service. Only the message
// is meant for users; the status and code are kept for the HTTP surface.
type ServiceError struct {
	Status  int    `json:"-"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("service error %d", e.Status)
}

// AsServiceError unwraps err to a *ServiceError if it carries one.
func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// decodeError turns a non-2xx body into a ServiceError. The table, RPC and
// auth endpoints each word their errors differently.
func decodeError(status int, body []byte) *ServiceError {
	var raw struct {
		Code             json.RawMessage `json:"code"`
		ErrorCode        string          `json:"error_code"`
		Message          string          `json:"message"`
		Msg              string          `json:"msg"`
		Error            string          `json:"error"`
		ErrorDescription string          `json:"error_description"`
		Details          string          `json:"details"`
		Hint             string          `json:"hint"`
	}
	se := &ServiceError{Status: status}
	if err := json.Unmarshal(body, &raw); err != nil {
		se.Message = strings.TrimSpace(string(body))
		if se.Message == "" {
			se.Message = http.StatusText(status)
		}
		return se
	}
	se.Code = strings.Trim(string(raw.Code), `"`)
	if raw.ErrorCode != "" {
		se.Code = raw.ErrorCode
	}
	switch {
	case raw.Message != "":
		se.Message = raw.Message
	case raw.Msg != "":
		se.Message = raw.Msg
	case raw.ErrorDescription != "":
		se.Message = raw.ErrorDescription
	case raw.Error != "":
		se.Message = raw.Error
	default:
		se.Message = http.StatusText(status)
	}
	se.Details, se.Hint = raw.Details, raw.Hint
	return se
}
