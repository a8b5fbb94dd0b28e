package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"carelink/pkg/apperr"
)

const maxBodyBytes = 1 << 20

var errEmptyBody = apperr.New(apperr.Validation, "request body is required")

// Decode reads a single JSON object into dst. Unknown fields, trailing data
// and bodies over 1 MiB are validation errors.
func Decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return decodeError(err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return apperr.New(apperr.Validation, "request body must be a single JSON object")
	}
	return nil
}

func decodeError(err error) error {
	var maxErr *http.MaxBytesError
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF):
		return errEmptyBody
	case errors.As(err, &maxErr):
		return apperr.New(apperr.Validation, "request body too large")
	case errors.As(err, &syntaxErr):
		return apperr.New(apperr.Validation, fmt.Sprintf("malformed JSON at offset %d", syntaxErr.Offset))
	case errors.As(err, &typeErr):
		return apperr.New(apperr.Validation, "invalid value").With("field", typeErr.Field)
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
		return apperr.New(apperr.Validation, "unknown field").With("field", field)
	}
	return apperr.Wrap(apperr.Validation, "invalid request body", err)
}

// Required returns a validation error naming the first blank field.
func Required(fields map[string]string) error {
	for _, name := range sortedKeys(fields) {
		if strings.TrimSpace(fields[name]) == "" {
			return apperr.New(apperr.Validation, name+" is required").With("field", name)
		}
	}
	return nil
}

// DecodeOptional is Decode for endpoints whose body may be omitted.
func DecodeOptional(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	if err := Decode(w, r, dst); !errors.Is(err, errEmptyBody) {
		return err
	}
	return nil
}
