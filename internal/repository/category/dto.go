package category

import (
	"fmt"
	"strconv"

	"github.com/kailas-cloud/coursedex/internal/domain"
	"github.com/kailas-cloud/coursedex/internal/domain/category"
)

// Hash field names of a category document.
const (
	fieldName    = "name"
	fieldCounter = "coursesCounter"
)

// docToHash converts a category document to a map for HSET.
// The id lives in the key, not in the hash.
func docToHash(doc category.Document) map[string]string {
	return map[string]string{
		fieldName:    doc.Name,
		fieldCounter: strconv.FormatInt(doc.CoursesCounter, 10),
	}
}

// docFromHash hydrates a category document from an HGETALL result.
// A missing counter reads as 0; a non-numeric one is a validation error.
func docFromHash(id string, m map[string]string) (category.Document, error) {
	doc := category.Document{ID: id, Name: m[fieldName]}
	raw, ok := m[fieldCounter]
	if !ok || raw == "" {
		return doc, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return category.Document{}, fmt.Errorf("%w: category %s has invalid coursesCounter %q",
			domain.ErrValidation, id, raw)
	}
	if n < 0 {
		n = 0
	}
	doc.CoursesCounter = n
	return doc, nil
}
