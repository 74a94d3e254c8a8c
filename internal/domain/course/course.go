package course

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/kailas-cloud/coursedex/internal/domain"
)

// Course is a course record as delivered by lifecycle events and the catalog.
// Category references are validated once at decode time: a malformed reference
// is recorded per kind and does not invalidate the other kinds.
type Course struct {
	id      string
	name    string
	refs    map[Kind]Ref
	invalid map[Kind]error
}

// New creates a Course with the given references. Kinds not present in refs are absent.
func New(id, name string, refs map[Kind]Ref) (Course, error) {
	if id == "" {
		return Course{}, fmt.Errorf("%w: course id is required", domain.ErrValidation)
	}
	c := Course{id: id, name: name, refs: make(map[Kind]Ref, len(refs))}
	for k, r := range refs {
		if !k.IsValid() {
			return Course{}, fmt.Errorf("%w: %q", domain.ErrUnknownKind, k)
		}
		c.refs[k] = r
	}
	return c, nil
}

// ID returns the course id.
func (c Course) ID() string { return c.id }

// Name returns the display name (nomeCorso).
func (c Course) Name() string { return c.name }

// Ref returns the reference for kind k. The error is a *RefError when the wire value was malformed.
func (c Course) Ref(k Kind) (Ref, error) {
	if err, ok := c.invalid[k]; ok {
		return Ref{}, err
	}
	return c.refs[k], nil
}

// Refs returns a copy of all valid present references.
func (c Course) Refs() map[Kind]Ref {
	out := make(map[Kind]Ref, len(c.refs))
	for k, r := range c.refs {
		if r.Present() {
			out[k] = r
		}
	}
	return out
}

// UnmarshalJSON decodes the wire shape {id, nomeCorso, discipline, university, ...}.
func (c *Course) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: course must be a JSON object", domain.ErrValidation)
	}

	id, err := parseID(raw["id"])
	if err != nil {
		return fmt.Errorf("course: %w", err)
	}

	var name string
	if rawName, ok := raw["nomeCorso"]; ok && !bytes.Equal(bytes.TrimSpace(rawName), []byte("null")) {
		if err := json.Unmarshal(rawName, &name); err != nil {
			return fmt.Errorf("%w: nomeCorso must be a string", domain.ErrValidation)
		}
	}

	out := Course{id: id, name: name, refs: make(map[Kind]Ref, len(kinds))}
	for _, k := range kinds {
		ref, err := parseRef(raw[string(k)])
		if err != nil {
			if out.invalid == nil {
				out.invalid = make(map[Kind]error)
			}
			out.invalid[k] = &RefError{Kind: k, Err: err}
			continue
		}
		out.refs[k] = ref
	}

	*c = out
	return nil
}

// MarshalJSON encodes id, nomeCorso and all kinds (absent or invalid as null).
func (c Course) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(kinds)+2)
	m["id"] = c.id
	m["nomeCorso"] = c.name
	for _, k := range kinds {
		m[string(k)] = c.refs[k]
	}
	return json.Marshal(m)
}
