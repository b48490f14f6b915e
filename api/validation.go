package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// bodyError is a request body problem with its response status and code
type bodyError struct {
	status  int
	code    string
	message string
	err     error
}

func (e *bodyError) Error() string {
	return e.message
}

func (e *bodyError) Unwrap() error {
	return e.err
}

// decodeJSONBody decodes the body validated by jsonBodyMiddleware into dst.
// An absent body decodes as an empty object so that required-field checks
// report on it; a non-empty body without a JSON content type is rejected.
func decodeJSONBody(r *http.Request, dst interface{}) error {
	body, ok := GetJSONBody(r.Context())
	if !ok {
		if hasBody(r) && !isJSONContentType(r.Header.Get("Content-Type")) {
			return &bodyError{
				status:  http.StatusUnsupportedMediaType,
				code:    CodeUnsupportedMediaType,
				message: "Content-Type must be application/json",
			}
		}
		return nil
	}

	if err := json.Unmarshal(body, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return &bodyError{
				status:  http.StatusBadRequest,
				code:    CodeInvalidJSON,
				message: fmt.Sprintf("Invalid type for field %q", typeErr.Field),
				err:     err,
			}
		}
		return &bodyError{
			status:  http.StatusBadRequest,
			code:    CodeInvalidJSON,
			message: "Invalid JSON in request body",
			err:     err,
		}
	}
	return nil
}

// hasBody reports whether the request carries a body. A chunked body has
// an unknown length (-1).
func hasBody(r *http.Request) bool {
	if r.ContentLength > 0 {
		return true
	}
	return r.ContentLength < 0 && r.Body != nil && r.Body != http.NoBody
}

// writeBodyError writes a decodeJSONBody failure
func (a *API) writeBodyError(w http.ResponseWriter, err error) {
	var be *bodyError
	if errors.As(err, &be) {
		writeError(w, be.status, be.code, be.message, be.err, a.logger)
		return
	}
	writeError(w, http.StatusBadRequest, CodeInvalidJSON, "Invalid request body", err, a.logger)
}

// newValidator builds the payload validator. Field names in errors use the
// json tag so messages match what the client sent.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// fieldMessages maps "<field>.<tag>" to the client message; "*.<tag>" is the
// fallback for any field
type fieldMessages map[string]string

// validationMessage returns the message for the first failed rule. Missing
// fields are reported before malformed ones.
func validationMessage(err error, messages fieldMessages) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request"
	}
	fe := verrs[0]
	for _, candidate := range verrs {
		if candidate.Tag() == "required" {
			fe = candidate
			break
		}
	}
	if msg, ok := messages[fe.Field()+"."+fe.Tag()]; ok {
		return msg
	}
	if msg, ok := messages["*."+fe.Tag()]; ok {
		return msg
	}
	return fmt.Sprintf("Field %q failed %q validation", fe.Field(), fe.Tag())
}
