package course

import (
	"fmt"

	"github.com/kailas-cloud/coursedex/internal/domain"
)

// Kind is a category kind a course can reference.
type Kind string

const (
	// Discipline is the academic discipline of a course.
	Discipline Kind = "discipline"
	// University is the university offering a course.
	University Kind = "university"
	// Location is the city or campus of a course.
	Location Kind = "location"
	// DegreeType is the degree level (bachelor, master, ...).
	DegreeType Kind = "degree_type"
	// ProgramType is the program format (full-time, online, ...).
	ProgramType Kind = "program_type"
	// Language is the teaching language.
	Language Kind = "language"
)

var kinds = [...]Kind{Discipline, University, Location, DegreeType, ProgramType, Language}

var collections = map[Kind]string{
	Discipline:  "disciplines",
	University:  "universities",
	Location:    "locations",
	DegreeType:  "degree_types",
	ProgramType: "program_types",
	Language:    "languages",
}

// Kinds returns all category kinds in canonical order.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds[:])
	return out
}

// IsValid checks that k is a known kind.
func (k Kind) IsValid() bool {
	_, ok := collections[k]
	return ok
}

// Collection returns the plural collection name used in URLs and storage (e.g. "universities").
func (k Kind) Collection() string {
	return collections[k]
}

// ParseKind parses a kind name ("university").
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.IsValid() {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownKind, s)
	}
	return k, nil
}

// ParseCollection accepts either a collection name ("universities") or a kind name ("university").
func ParseCollection(s string) (Kind, error) {
	for k, c := range collections {
		if c == s {
			return k, nil
		}
	}
	return ParseKind(s)
}
