package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/marketcore/pkg/errors"
)

// PathUUID reads a uuid route parameter. A malformed id cannot match any
// record, so it reports NotFound.
func PathUUID(r *http.Request, key string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, key))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "resource not found").WithDetails(map[string]any{"field": key})
	}
	return id, nil
}

// PathInt64 reads a positive integer route parameter.
func PathInt64(r *http.Request, key string) (int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, key))
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeNotFound, "resource not found").WithDetails(map[string]any{"field": key})
	}
	return value, nil
}

// ParseQueryInt reads an optional integer query parameter bounded by
// [min, max]. Absent values yield defaultVal.
func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.FieldErrors{key: "must be numeric"}.AsError()
	}
	if value < min || value > max {
		return 0, pkgerrors.FieldErrors{key: "must be between " + strconv.Itoa(min) + " and " + strconv.Itoa(max)}.AsError()
	}
	return value, nil
}
