// Package category models the per-kind aggregate documents that count how many
// courses reference each filter value, and the counter state machine applied to them.
package category

import (
	"fmt"

	"github.com/kailas-cloud/coursedex/internal/domain/course"
)

// Key identifies a category document: kind + id.
type Key struct {
	Kind course.Kind
	ID   string
}

func (k Key) String() string { return string(k.Kind) + "/" + k.ID }

// KeyOf returns the key of a present reference.
func KeyOf(kind course.Kind, ref course.Ref) Key {
	return Key{Kind: kind, ID: ref.ID()}
}

// Document is the aggregate record for one category.
type Document struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	CoursesCounter int64  `json:"coursesCounter"`
}

// Transition is the state change applied to a document by one operation.
type Transition string

const (
	// Created: absent -> present(1).
	Created Transition = "created"
	// Incremented: present(n) -> present(n+1).
	Incremented Transition = "incremented"
	// Decremented: present(n) -> present(n-1), n > 0.
	Decremented Transition = "decremented"
	// Clamped: present(0) -> present(0) on decrement.
	Clamped Transition = "clamped"
	// Missing: decrement on an absent document; nothing written.
	Missing Transition = "missing"
)

// Writes reports whether the transition changes stored state.
func (t Transition) Writes() bool {
	return t == Created || t == Incremented || t == Decremented
}

// Op is a single counter adjustment against one category document.
type Op struct {
	Key   Key
	Delta int // +1 or -1
	Name  string
}

// Increment returns an increment-or-create op for ref.
func Increment(kind course.Kind, ref course.Ref) Op {
	return Op{Key: KeyOf(kind, ref), Delta: 1, Name: ref.Name()}
}

// Decrement returns a clamped decrement op for ref.
func Decrement(kind course.Kind, ref course.Ref) Op {
	return Op{Key: KeyOf(kind, ref), Delta: -1, Name: ref.Name()}
}

func (o Op) String() string {
	return fmt.Sprintf("%s%+d", o.Key, o.Delta)
}

// Apply runs the state machine for op against the current state of its document.
// present=false means the document does not exist. The returned document is the
// state to persist when the transition writes.
//
//	absent      --increment--> present(1)
//	present(n)  --increment--> present(n+1)
//	present(n)  --decrement--> present(max(0, n-1))
//	absent      --decrement--> absent (missing)
func Apply(op Op, doc Document, present bool) (Document, Transition) {
	switch {
	case op.Delta > 0 && !present:
		return Document{ID: op.Key.ID, Name: op.Name, CoursesCounter: 1}, Created
	case op.Delta > 0:
		doc.CoursesCounter++
		return doc, Incremented
	case !present:
		return doc, Missing
	case doc.CoursesCounter <= 0:
		doc.CoursesCounter = 0
		return doc, Clamped
	default:
		doc.CoursesCounter--
		return doc, Decremented
	}
}

// Result is the outcome of one op inside a committed transaction.
type Result struct {
	Op         Op
	Transition Transition
	Counter    int64
}
