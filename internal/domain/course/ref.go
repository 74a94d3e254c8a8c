package course

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kailas-cloud/coursedex/internal/domain"
)

// Ref is an optional reference from a course to a category document.
// Either absent, or present with both a non-empty id and name.
type Ref struct {
	id      string
	name    string
	present bool
}

// Absent returns the empty reference.
func Absent() Ref { return Ref{} }

// NewRef validates and creates a present reference.
func NewRef(id, name string) (Ref, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Ref{}, fmt.Errorf("%w: category reference id is required", domain.ErrValidation)
	}
	if strings.ContainsAny(id, ":*") {
		return Ref{}, fmt.Errorf("%w: category reference id %q contains reserved characters", domain.ErrValidation, id)
	}
	if name == "" {
		return Ref{}, fmt.Errorf("%w: category reference name is required for id %q", domain.ErrValidation, id)
	}
	return Ref{id: id, name: name, present: true}, nil
}

// Present reports whether the reference points to a category.
func (r Ref) Present() bool { return r.present }

// ID returns the category id ("" when absent).
func (r Ref) ID() string { return r.id }

// Name returns the category display name ("" when absent).
func (r Ref) Name() string { return r.name }

// Equal compares two references by value; two absent references are equal.
func (r Ref) Equal(o Ref) bool {
	return r.present == o.present && r.id == o.id && r.name == o.name
}

// SameCategory reports whether both references are present and point to the same category id.
func (r Ref) SameCategory(o Ref) bool {
	return r.present && o.present && r.id == o.id
}

func (r Ref) String() string {
	if !r.present {
		return "null"
	}
	return fmt.Sprintf("{id:%s name:%s}", r.id, r.name)
}

// MarshalJSON encodes the reference as null or {"id","name"}.
func (r Ref) MarshalJSON() ([]byte, error) {
	if !r.present {
		return []byte("null"), nil
	}
	return json.Marshal(struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}{ID: r.id, Name: r.name})
}

// RefError is a validation failure of a single category reference.
type RefError struct {
	Kind Kind
	Err  error
}

func (e *RefError) Error() string { return string(e.Kind) + ": " + e.Err.Error() }
func (e *RefError) Unwrap() error { return e.Err }

// parseRef decodes a wire reference: missing or null is absent, an object needs id and name.
func parseRef(raw json.RawMessage) (Ref, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Absent(), nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return Ref{}, fmt.Errorf("%w: category reference must be an object or null", domain.ErrValidation)
	}

	id, err := parseID(obj["id"])
	if err != nil {
		return Ref{}, err
	}

	var name string
	if rawName, ok := obj["name"]; ok && !bytes.Equal(bytes.TrimSpace(rawName), []byte("null")) {
		if err := json.Unmarshal(rawName, &name); err != nil {
			return Ref{}, fmt.Errorf("%w: category reference name must be a string", domain.ErrValidation)
		}
	}

	return NewRef(id, name)
}

var errMissingID = errors.New("id is required")

// parseID accepts JSON strings and numbers; numbers keep their literal form ("1", "42").
func parseID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", fmt.Errorf("%w: %w", domain.ErrValidation, errMissingID)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("%w: invalid id: %w", domain.ErrValidation, err)
	}

	switch id := v.(type) {
	case string:
		if strings.TrimSpace(id) == "" {
			return "", fmt.Errorf("%w: %w", domain.ErrValidation, errMissingID)
		}
		return id, nil
	case json.Number:
		return id.String(), nil
	default:
		return "", fmt.Errorf("%w: id must be a string or a number", domain.ErrValidation)
	}
}
