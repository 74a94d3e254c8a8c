package course

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/kailas-cloud/coursedex/internal/domain"
)

func TestUnmarshal_FullRecord(t *testing.T) {
	data := `{
		"id": 1,
		"nomeCorso": "Informatica",
		"discipline": {"id": "math", "name": "Matematica"},
		"university": {"id": 42, "name": "Politecnico"},
		"location": null,
		"degree_type": {"id": "lm", "name": "Laurea Magistrale"},
		"cfu": 120
	}`

	var c Course
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ID() != "1" {
		t.Errorf("id = %q, want 1", c.ID())
	}
	if c.Name() != "Informatica" {
		t.Errorf("name = %q", c.Name())
	}

	disc, err := c.Ref(Discipline)
	if err != nil || !disc.Present() || disc.ID() != "math" || disc.Name() != "Matematica" {
		t.Errorf("discipline = %v, %v", disc, err)
	}
	uni, _ := c.Ref(University)
	if uni.ID() != "42" {
		t.Errorf("numeric university id = %q, want 42", uni.ID())
	}
	loc, err := c.Ref(Location)
	if err != nil || loc.Present() {
		t.Errorf("location should be absent, got %v, %v", loc, err)
	}
	lang, err := c.Ref(Language)
	if err != nil || lang.Present() {
		t.Errorf("missing language should be absent, got %v, %v", lang, err)
	}
	if len(c.Refs()) != 3 {
		t.Errorf("Refs() = %d entries, want 3", len(c.Refs()))
	}
}

func TestUnmarshal_MalformedRefIsolated(t *testing.T) {
	data := `{
		"id": "c1",
		"nomeCorso": "Fisica",
		"discipline": {"id": "phys"},
		"university": {"name": "No id"},
		"location": {"id": "mi", "name": "Milano"},
		"language": "italian"
	}`

	var c Course
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, k := range []Kind{Discipline, University, Language} {
		_, err := c.Ref(k)
		if err == nil {
			t.Errorf("%s: expected validation error", k)
			continue
		}
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("%s: expected ErrValidation, got %v", k, err)
		}
		var re *RefError
		if !errors.As(err, &re) || re.Kind != k {
			t.Errorf("%s: expected *RefError for kind, got %T", k, err)
		}
	}

	loc, err := c.Ref(Location)
	if err != nil || loc.ID() != "mi" {
		t.Errorf("location should stay valid, got %v, %v", loc, err)
	}
}

func TestUnmarshal_MissingCourseID(t *testing.T) {
	var c Course
	err := json.Unmarshal([]byte(`{"nomeCorso": "x"}`), &c)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestRefEqual(t *testing.T) {
	a, _ := NewRef("math", "Matematica")
	b, _ := NewRef("math", "Matematica")
	c, _ := NewRef("math", "Mathematics")
	d, _ := NewRef("phys", "Fisica")

	tests := []struct {
		name string
		x, y Ref
		want bool
	}{
		{"both absent", Absent(), Absent(), true},
		{"same value", a, b, true},
		{"renamed", a, c, false},
		{"different id", a, d, false},
		{"absent vs present", Absent(), a, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.x.Equal(tc.y); got != tc.want {
				t.Errorf("Equal = %v, want %v", got, tc.want)
			}
		})
	}

	if !a.SameCategory(c) {
		t.Error("renamed ref should point to the same category")
	}
	if Absent().SameCategory(Absent()) {
		t.Error("absent refs point to no category")
	}
}

func TestNewRef_Validation(t *testing.T) {
	if _, err := NewRef("", "x"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("empty id: %v", err)
	}
	if _, err := NewRef("x", ""); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("empty name: %v", err)
	}
	if _, err := NewRef("a:b", "x"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("reserved char: %v", err)
	}
}

func TestParseCollection(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"universities", University},
		{"locations", Location},
		{"degree_types", DegreeType},
		{"language", Language},
	}
	for _, tc := range tests {
		got, err := ParseCollection(tc.in)
		if err != nil || got != tc.want {
			t.Errorf("ParseCollection(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
		}
	}

	if _, err := ParseCollection("faculties"); !errors.Is(err, domain.ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
}

func TestDecodeSummary_KeepsRawFields(t *testing.T) {
	raw := json.RawMessage(`{"id":2,"nomeCorso":"Ingegneria Informatica","cfu":180,"university":null}`)
	s, err := DecodeSummary(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != string(raw) {
		t.Errorf("raw entry not preserved:\ngot:  %s\nwant: %s", out, raw)
	}
}

func TestDecodeSummary_RequiresName(t *testing.T) {
	_, err := DecodeSummary(json.RawMessage(`{"id":3}`))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
