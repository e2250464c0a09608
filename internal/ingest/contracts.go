package ingest

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/tinytelemetry/displaylog/internal/model"
)

// Policy selects how uploads with missing status fields are treated.
type Policy string

const (
	// PolicyPartial records whichever subset of status fields is present.
	PolicyPartial Policy = "partial"
	// PolicyStrict rejects an upload unless every status field is present and non-empty.
	PolicyStrict Policy = "strict"
)

// ErrMissingField matches every MissingFieldError.
var ErrMissingField = errors.New("ingest: missing required field")

// MissingFieldError names the first status field a strict upload lacked.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("ingest: missing required field %q", e.Field)
}

func (e *MissingFieldError) Is(target error) bool { return target == ErrMissingField }

// ParsePolicy maps a config value to a Policy. Empty selects PolicyPartial.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyPartial:
		return PolicyPartial, nil
	case PolicyStrict:
		return PolicyStrict, nil
	default:
		return "", fmt.Errorf("ingest: unknown validation policy %q", s)
	}
}

// Extract picks the status fields out of form. Only the first value of a
// repeated key is used.
func (p Policy) Extract(form url.Values) (model.Fields, error) {
	fields := make(model.Fields, len(model.StatusFields))
	for _, name := range model.StatusFields {
		values, ok := form[name]
		if !ok || len(values) == 0 {
			if p == PolicyStrict {
				return nil, &MissingFieldError{Field: name}
			}
			continue
		}
		if p == PolicyStrict && values[0] == "" {
			return nil, &MissingFieldError{Field: name}
		}
		fields[name] = values[0]
	}
	return fields, nil
}
