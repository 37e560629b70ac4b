// Package envelope is the single response shape shared by the backend API and its clients:
// {"data": ...} on success and {"error": {"code", "message", "fields"}} on failure.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Error codes carried in ErrorBody.Code.
const (
	CodeValidation         = "validation_error"
	CodeInvalidCredentials = "invalid_credentials"
	CodeInvalidCode        = "invalid_code"
	CodeUnauthenticated    = "unauthenticated"
	CodeForbidden          = "forbidden"
	CodeNotFound           = "not_found"
	CodeConflict           = "conflict"
	CodeRateLimited        = "rate_limited"
	CodeInternal           = "internal"
	CodeUnavailable        = "unavailable"
)

// ErrorBody is the error half of the envelope.
type ErrorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Envelope is the wire form of every response body.
type Envelope struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Error *ErrorBody      `json:"error,omitempty"`
}

// ErrMalformed is returned by Decode when a body is neither a data nor an error envelope.
var ErrMalformed = errors.New("envelope: malformed response body")

// WriteData writes v as {"data": v} with the given status.
func WriteData(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Data any `json:"data"`
	}{v})
}

// WriteError writes {"error": {...}} with the given status.
func WriteError(w http.ResponseWriter, status int, code, message string, fields map[string]string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{Error: &ErrorBody{Code: code, Message: message, Fields: fields}})
}

// Decode reads one envelope from r. On success the data half is unmarshalled into out
// (out may be nil to discard it) and the returned ErrorBody is nil. When the body carries
// an error, that ErrorBody is returned and out is untouched.
func Decode(r io.Reader, out any) (*ErrorBody, error) {
	var env Envelope
	if err := json.NewDecoder(io.LimitReader(r, 1<<20)).Decode(&env); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrMalformed
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Error != nil {
		return env.Error, nil
	}
	if out == nil || len(env.Data) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil, nil
}
