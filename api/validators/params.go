package validators

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/ordersettle/pkg/errors"
)

// ParseUUIDParam reads a uuid path parameter.
func ParseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	return ParseUUIDField(name, chi.URLParam(r, name))
}

func ParseUUIDField(field, raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "value is required").WithDetails(map[string]any{"field": field})
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "must be a valid uuid").WithDetails(map[string]any{"field": field})
	}
	return id, nil
}
