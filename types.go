package coursedex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/kailas-cloud/coursedex/internal/domain"
	"github.com/kailas-cloud/coursedex/internal/domain/category"
	"github.com/kailas-cloud/coursedex/internal/domain/course"
	"github.com/kailas-cloud/coursedex/internal/domain/event"
)

// CatalogSource opens catalog snapshot blobs by name.
type CatalogSource interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// Kind is a category kind a course can reference.
type Kind = course.Kind

// Category kinds.
const (
	Discipline  = course.Discipline
	University  = course.University
	Location    = course.Location
	DegreeType  = course.DegreeType
	ProgramType = course.ProgramType
	Language    = course.Language
)

// ParseCollection accepts a collection name ("universities") or a kind name ("university").
func ParseCollection(s string) (Kind, error) {
	k, err := course.ParseCollection(s)
	if err != nil {
		return "", fmt.Errorf("coursedex: %w", err)
	}
	return k, nil
}

// Report is the per-kind outcome of one lifecycle event.
type Report = event.Report

// Outcome actions.
const (
	ActionNoop      = event.ActionNoop
	ActionApplied   = event.ActionApplied
	ActionSkipped   = event.ActionSkipped
	ActionFailed    = event.ActionFailed
	ActionDuplicate = event.ActionDuplicate
)

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrValidation  = domain.ErrValidation
	ErrNotFound    = domain.ErrNotFound
	ErrUnknownKind = domain.ErrUnknownKind
)

// CategoryRef points a course at a category document. Both fields are required;
// a half-filled reference is skipped for its kind only.
type CategoryRef struct {
	ID   string
	Name string
}

// Course is a course record. A nil or missing Refs entry means the course
// does not reference that kind.
type Course struct {
	ID   string
	Name string
	Refs map[Kind]*CategoryRef
}

// toDomain goes through the wire decoder so malformed references are
// isolated per kind exactly as in HTTP hooks.
func (c Course) toDomain() (course.Course, error) {
	wire := map[string]any{"id": c.ID, "nomeCorso": c.Name}
	for k, r := range c.Refs {
		if !k.IsValid() {
			return course.Course{}, fmt.Errorf("coursedex: %w: %q", domain.ErrUnknownKind, k)
		}
		if r == nil {
			continue
		}
		ref := map[string]any{}
		if r.ID != "" {
			ref["id"] = r.ID
		}
		if r.Name != "" {
			ref["name"] = r.Name
		}
		wire[string(k)] = ref
	}
	if c.ID == "" {
		delete(wire, "id")
	}

	data, err := json.Marshal(wire)
	if err != nil {
		return course.Course{}, fmt.Errorf("coursedex: encode course: %w", err)
	}
	var out course.Course
	if err := json.Unmarshal(data, &out); err != nil {
		return course.Course{}, fmt.Errorf("coursedex: %w", err)
	}
	return out, nil
}

// CourseHit is one course search result. Raw is the catalog entry as stored,
// including display fields the client does not model.
type CourseHit struct {
	ID   string
	Name string
	Raw  json.RawMessage
}

func courseHitFromDomain(s course.Summary) CourseHit {
	raw, err := s.MarshalJSON()
	if err != nil {
		raw = nil
	}
	return CourseHit{ID: s.ID(), Name: s.Name(), Raw: raw}
}

// Category is an aggregate category document.
type Category struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	CoursesCounter int64  `json:"coursesCounter"`
}

func categoriesFromDomain(docs []category.Document) []Category {
	out := make([]Category, len(docs))
	for i, d := range docs {
		out[i] = Category(d)
	}
	return out
}
