package errors

import (
	"sort"
	"strings"
)

// FieldErrors collects per-field validation messages. The first message
// recorded for a field wins so callers see the most specific problem.
type FieldErrors map[string]string

// Add records msg under field unless the field already has a message.
func (f FieldErrors) Add(field, msg string) {
	if _, exists := f[field]; exists {
		return
	}
	f[field] = msg
}

func (f FieldErrors) Empty() bool {
	return len(f) == 0
}

// Fields returns the sorted field names.
func (f FieldErrors) Fields() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (f FieldErrors) Error() string {
	parts := make([]string, 0, len(f))
	for _, field := range f.Fields() {
		parts = append(parts, field+": "+f[field])
	}
	return strings.Join(parts, "; ")
}

// AsError converts the collection into a validation error, or nil when empty.
func (f FieldErrors) AsError() error {
	if f.Empty() {
		return nil
	}
	return Wrap(CodeValidation, f, "validation failed").WithDetails(map[string]string(f))
}

// FieldErrorsOf extracts the field map from a validation error, if present.
func FieldErrorsOf(err error) FieldErrors {
	typed := As(err)
	if typed == nil || typed.Code() != CodeValidation {
		return nil
	}
	switch details := typed.Details().(type) {
	case map[string]string:
		return FieldErrors(details)
	case FieldErrors:
		return details
	}
	return nil
}
