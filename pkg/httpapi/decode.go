package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeError is returned when a request body is malformed or fails validation.
type DecodeError struct {
	Code    string
	Message string
	Fields  map[string]string
}

func (e *DecodeError) Error() string {
	return e.Message
}

// DecodeJSON reads a JSON body into dst and runs struct validation on it.
// An empty body is accepted and only validated.
func DecodeJSON(r *http.Request, dst any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return &DecodeError{Code: "INVALID_BODY", Message: fmt.Sprintf("invalid request body: %v", err)}
	}
	return Validate(dst)
}

func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &DecodeError{Code: "INVALID_BODY", Message: err.Error()}
	}
	fields := make(map[string]string, len(verrs))
	names := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := strings.ToLower(fe.Field())
		fields[name] = fe.Tag()
		names = append(names, name)
	}
	return &DecodeError{
		Code:    "VALIDATION_FAILED",
		Message: "invalid fields: " + strings.Join(names, ", "),
		Fields:  fields,
	}
}

// WriteDecodeError writes a 400 response for a DecodeError.
func WriteDecodeError(w http.ResponseWriter, err *DecodeError) error {
	return WriteError(w, http.StatusBadRequest, err.Code, err.Message, err.Fields)
}
