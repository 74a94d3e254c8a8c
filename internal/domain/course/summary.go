package course

import (
	"encoding/json"
	"fmt"

	"github.com/kailas-cloud/coursedex/internal/domain"
)

// Summary is a catalog entry: the parsed course plus its original JSON,
// which search responses re-emit verbatim so display fields survive.
type Summary struct {
	Course
	raw json.RawMessage
}

// DecodeSummary parses a single catalog entry. The entry needs an id and a string nomeCorso.
func DecodeSummary(raw json.RawMessage) (Summary, error) {
	var c Course
	if err := json.Unmarshal(raw, &c); err != nil {
		return Summary{}, err
	}
	if c.Name() == "" {
		return Summary{}, fmt.Errorf("%w: course %s has no nomeCorso", domain.ErrValidation, c.ID())
	}
	return Summary{Course: c, raw: append(json.RawMessage(nil), raw...)}, nil
}

// NewSummary builds a summary from a course; the raw form is the course's own encoding.
func NewSummary(c Course) Summary {
	return Summary{Course: c}
}

// MarshalJSON returns the original catalog entry when available.
func (s Summary) MarshalJSON() ([]byte, error) {
	if len(s.raw) > 0 {
		return s.raw, nil
	}
	return s.Course.MarshalJSON()
}
