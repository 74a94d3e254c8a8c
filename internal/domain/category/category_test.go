package category

import (
	"testing"

	"github.com/kailas-cloud/coursedex/internal/domain/course"
)

func TestApply_StateMachine(t *testing.T) {
	ref, _ := course.NewRef("math", "Matematica")
	inc := Increment(course.Discipline, ref)
	dec := Decrement(course.Discipline, ref)

	tests := []struct {
		name        string
		op          Op
		doc         Document
		present     bool
		wantTrans   Transition
		wantCounter int64
		wantName    string
	}{
		{"create on absent", inc, Document{}, false, Created, 1, "Matematica"},
		{"increment", inc, Document{ID: "math", Name: "Old", CoursesCounter: 4}, true, Incremented, 5, "Old"},
		{"decrement", dec, Document{ID: "math", Name: "Old", CoursesCounter: 4}, true, Decremented, 3, "Old"},
		{"decrement to zero", dec, Document{CoursesCounter: 1}, true, Decremented, 0, ""},
		{"clamp at zero", dec, Document{CoursesCounter: 0}, true, Clamped, 0, ""},
		{"clamp negative", dec, Document{CoursesCounter: -3}, true, Clamped, 0, ""},
		{"decrement absent", dec, Document{}, false, Missing, 0, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, tr := Apply(tc.op, tc.doc, tc.present)
			if tr != tc.wantTrans {
				t.Errorf("transition = %q, want %q", tr, tc.wantTrans)
			}
			if got.CoursesCounter != tc.wantCounter {
				t.Errorf("counter = %d, want %d", got.CoursesCounter, tc.wantCounter)
			}
			if got.Name != tc.wantName {
				t.Errorf("name = %q, want %q", got.Name, tc.wantName)
			}
		})
	}
}

func TestTransitionWrites(t *testing.T) {
	for tr, want := range map[Transition]bool{
		Created: true, Incremented: true, Decremented: true, Clamped: false, Missing: false,
	} {
		if tr.Writes() != want {
			t.Errorf("%s.Writes() = %v, want %v", tr, !want, want)
		}
	}
}
