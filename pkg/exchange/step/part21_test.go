package step

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestStringEscaping(t *testing.T) {
	tests := []string{
		"plain",
		"O'Brien",
		`back\slash`,
		"Größe",
		"emoji 😀",
		"",
	}
	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			p := &parser{src: []byte(str(in))}
			got, err := p.stringValue()
			if err != nil {
				t.Fatalf("stringValue(%s) error: %v", str(in), err)
			}
			if got != in {
				t.Errorf("round trip of %q gave %q via %s", in, got, str(in))
			}
		})
	}
}

func TestNum(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0."},
		{10, "10."},
		{-2.5, "-2.5"},
		{0.125, "0.125"},
	}
	for _, tt := range tests {
		if got := num(tt.in); got != tt.want {
			t.Errorf("num(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseFile(t *testing.T) {
	src := `ISO-10303-21;
HEADER;
FILE_NAME('a.stp','2026-01-01T00:00:00',('me'),(''),'x','y','');
ENDSEC;
DATA;
/* comment */
#1=CARTESIAN_POINT('',(1.,-2.5,3.E-1));
#2=BOOLEAN_RESULT('',.UNION.,#1,$);
#3=MEASURE_WITH_UNIT(LENGTH_MEASURE(1.),*);
#4=(NAMED_UNIT(*) SI_UNIT(.MILLI.,.METRE.));
ENDSEC;
END-ISO-10303-21;
`
	f, err := parseFile([]byte(src))
	if err != nil {
		t.Fatalf("parseFile: %v", err)
	}
	if diff := cmp.Diff([]int{1, 2, 3, 4}, f.order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	want := map[int]*Entity{
		1: {ID: 1, Name: "CARTESIAN_POINT", Params: []any{"", []any{1.0, -2.5, 0.3}}},
		2: {ID: 2, Name: "BOOLEAN_RESULT", Params: []any{"", Enum("UNION"), Ref(1), Unset{}}},
		3: {ID: 3, Name: "MEASURE_WITH_UNIT", Params: []any{Typed{Name: "LENGTH_MEASURE", Params: []any{1.0}}, Derived{}}},
		4: {ID: 4, Complex: []Typed{
			{Name: "NAMED_UNIT", Params: []any{Derived{}}},
			{Name: "SI_UNIT", Params: []any{Enum("MILLI"), Enum("METRE")}},
		}},
	}
	if diff := cmp.Diff(want, f.entities); diff != "" {
		t.Errorf("entities mismatch (-want +got):\n%s", diff)
	}
	if h := f.fileHeader(); h.FileName != "a.stp" || h.Author != "me" {
		t.Errorf("header = %+v", h)
	}
}

func TestParseFileErrors(t *testing.T) {
	tests := map[string]string{
		"duplicate id": "ISO-10303-21;HEADER;ENDSEC;DATA;#1=A();#1=B();ENDSEC;",
		"missing semi": "ISO-10303-21;HEADER;ENDSEC;DATA;#1=A()#2=B();ENDSEC;",
		"bad string":   "ISO-10303-21;HEADER;ENDSEC;DATA;#1=A('oops);ENDSEC;",
		"no data":      "ISO-10303-21;HEADER;ENDSEC;",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := parseFile([]byte(src)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
