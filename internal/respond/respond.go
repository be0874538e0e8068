// Package respond writes the JSON envelope shared by every HTTP endpoint:
// {statusCode, data, message, success}.
package respond

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"nexus-chat/internal/apperr"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type envelope struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data,omitempty"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

// JSON writes a successful envelope.
func JSON(w http.ResponseWriter, status int, data any, message string) {
	write(w, envelope{StatusCode: status, Data: data, Message: message, Success: true})
}

// Fail writes an error envelope with an explicit status.
func Fail(w http.ResponseWriter, status int, message string) {
	write(w, envelope{StatusCode: status, Message: message})
}

// Error classifies err and writes it. Internal failures are logged and replaced by a generic message.
func Error(w http.ResponseWriter, log *slog.Logger, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		log.Error("Request failed", "error", err)
	}
	Fail(w, kind.Status(), apperr.PublicMessage(err))
}

func write(w http.ResponseWriter, e envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	_ = json.NewEncoder(w).Encode(e)
}

// Decode reads a JSON body into dst and validates its struct tags.
func Decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Invalid("malformed request body")
	}
	return Validate(dst)
}

// Validate checks struct tags and reports the failing fields as invalid input.
func Validate(dst any) error {
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return apperr.Invalid(err.Error())
	}
	msgs := make([]string, 0, len(fields))
	for _, f := range fields {
		msgs = append(msgs, fmt.Sprintf("%s failed on %s", f.Field(), f.Tag()))
	}
	return apperr.Invalid(strings.Join(msgs, ", "))
}
