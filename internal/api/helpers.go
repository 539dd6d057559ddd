package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"grimm.is/ruledit/internal/i18n"
)

// ErrorResponse represents a standard API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// WriteError sends a JSON error response
func WriteError(w http.ResponseWriter, code int, message string, details ...string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	resp := ErrorResponse{Error: message}
	if len(details) > 0 {
		resp.Details = details[0]
	}
	json.NewEncoder(w).Encode(resp)
}

// WriteJSON sends a JSON success response
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// WriteErrorCtx sends a localized JSON error response. err, when non-nil,
// becomes the details field.
func WriteErrorCtx(w http.ResponseWriter, r *http.Request, code int, err error, format string, args ...any) {
	msg := i18n.GetPrinter(r.Context()).Sprintf(format, args...)
	if err != nil {
		WriteError(w, code, msg, err.Error())
		return
	}
	WriteError(w, code, msg)
}

// writeText sends a plain text response.
func writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, text)
}

// decodeJSON reads a JSON body into v, rejecting unknown fields. An empty body
// leaves v untouched when allowEmpty is set.
func decodeJSON(r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(v)
	if allowEmpty && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// pathInt parses an integer path value.
func pathInt(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(r.PathValue(name), 10, 64)
}

// tooLarge reports whether err came from an http.MaxBytesReader.
func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
