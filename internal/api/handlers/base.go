package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/eshaffer321/reconciler-backend/internal/api/dto"
	"github.com/eshaffer321/reconciler-backend/internal/application/reconcile"
	"github.com/eshaffer321/reconciler-backend/internal/domain/rules"
	"github.com/eshaffer321/reconciler-backend/internal/infrastructure/storage"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// validate is shared by all handlers; validator caches struct metadata.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report json field names in validation messages
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Base provides shared functionality for all handlers.
type Base struct {
	logger *slog.Logger
}

// NewBase creates a new base handler.
func NewBase(logger *slog.Logger) *Base {
	if logger == nil {
		logger = slog.Default()
	}
	return &Base{logger: logger}
}

// WriteJSON writes a JSON response with the given status code.
func (b *Base) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteData writes a successful response wrapped in the data envelope.
func (b *Base) WriteData(w http.ResponseWriter, status int, data interface{}) {
	b.WriteJSON(w, status, dto.Envelope{Data: data})
}

// WriteError writes an error response with the given status code.
func (b *Base) WriteError(w http.ResponseWriter, status int, err dto.APIError) {
	b.WriteJSON(w, status, err)
}

// WriteServiceError maps domain and storage errors to HTTP responses.
func (b *Base) WriteServiceError(w http.ResponseWriter, r *http.Request, resource string, err error) {
	var (
		storeErr   *reconcile.StoreError
		parseErr   *rules.ParseError
		unknownErr *rules.UnknownTypeError
	)

	switch {
	case errors.Is(err, storage.ErrNotFound):
		b.WriteError(w, http.StatusNotFound, dto.NotFoundError(resource))
	case errors.Is(err, storage.ErrNotRaw):
		b.WriteError(w, http.StatusConflict, dto.ConflictError("only RAW transactions can be edited"))
	case errors.Is(err, reconcile.ErrRunInProgress):
		b.WriteError(w, http.StatusConflict, dto.RunInProgressError())
	case errors.As(err, &storeErr):
		b.logger.Error("reconciliation run failed", "op", storeErr.Op, "error", storeErr.Err, "path", r.URL.Path)
		b.WriteError(w, http.StatusInternalServerError, dto.StoreFailureError(string(storeErr.Op)))
	case errors.As(err, &parseErr), errors.As(err, &unknownErr):
		b.WriteError(w, http.StatusBadRequest, dto.ValidationError(err.Error()))
	default:
		b.logger.Error("request failed", "error", err, "method", r.Method, "path", r.URL.Path)
		b.WriteError(w, http.StatusInternalServerError, dto.InternalError())
	}
}

// DecodeJSON decodes and validates a request body. On failure it writes
// the 400 response and returns false.
func (b *Base) DecodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		b.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid JSON body: "+err.Error()))
		return false
	}
	if err := validate.Struct(dst); err != nil {
		b.WriteError(w, http.StatusBadRequest, dto.ValidationError(validationMessage(err)))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		}
	}
	return strings.Join(msgs, "; ")
}

// ParseID parses the {id} URL parameter. On failure it writes the 400
// response and returns false.
func (b *Base) ParseID(w http.ResponseWriter, r *http.Request, resource string) (int64, bool) {
	idStr := chi.URLParam(r, "id")
	if idStr == "" {
		b.WriteError(w, http.StatusBadRequest, dto.BadRequestError(resource+" ID is required"))
		return 0, false
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		b.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid "+resource+" ID"))
		return 0, false
	}
	return id, true
}

// ParseIntParam parses an integer query parameter with a default value.
func ParseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}

// ParseOptionalBool parses a boolean query parameter. ok is false when
// the value is present but not a boolean.
func ParseOptionalBool(r *http.Request, name string) (val *bool, ok bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, false
	}
	return &b, true
}

// ParseOptionalInt parses an integer query parameter. ok is false when
// the value is present but not an integer.
func ParseOptionalInt(r *http.Request, name string) (val *int, ok bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, false
	}
	return &n, true
}
