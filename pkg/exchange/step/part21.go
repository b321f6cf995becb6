package step

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Values
// ---------------------------------------------------------------------------

// Parameter values produced by the parser:
//
//	string    quoted string
//	float64   integer or real
//	Ref       entity instance name (#12)
//	Enum      enumeration (.UNION.)
//	Unset     $
//	Derived   *
//	[]any     aggregate
//	Typed     typed parameter, e.g. LENGTH_MEASURE(1.)
type (
	Ref     int
	Enum    string
	Unset   struct{}
	Derived struct{}
)

// Typed is a keyword applied to a parameter list.
type Typed struct {
	Name   string
	Params []any
}

// Entity is one instance of the DATA section. Complex entities
// (#4=(A() B());) carry their parts in Complex and have an empty Name.
type Entity struct {
	ID      int
	Name    string
	Params  []any
	Complex []Typed
}

// ---------------------------------------------------------------------------
// Writer
// ---------------------------------------------------------------------------

// writer numbers entities in the order they are added.
type writer struct {
	buf bytes.Buffer
	n   int
}

func (w *writer) add(name string, params ...string) int {
	w.n++
	fmt.Fprintf(&w.buf, "#%d=%s(%s);\n", w.n, name, strings.Join(params, ","))
	return w.n
}

func ref(n int) string { return "#" + strconv.Itoa(n) }

func refs(ns ...int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = ref(n)
	}
	return list(parts...)
}

func list(items ...string) string { return "(" + strings.Join(items, ",") + ")" }

func enum(e string) string { return "." + e + "." }

const unset = "$"

// num formats a REAL; Part 21 requires a decimal point.
func num(v float64) string {
	if v == 0 {
		return "0."
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += "."
	}
	return s
}

func reals(vs ...float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = num(v)
	}
	return list(parts...)
}

// str quotes a string. Apostrophes and backslashes are doubled; characters
// outside printable ASCII use the \X2\ and \X4\ control directives.
func str(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		switch {
		case r == '\'':
			b.WriteString("''")
		case r == '\\':
			b.WriteString(`\\`)
		case r >= 0x20 && r < 0x7f:
			b.WriteRune(r)
		case r <= 0xffff:
			fmt.Fprintf(&b, `\X2\%04X\X0\`, r)
		default:
			fmt.Fprintf(&b, `\X4\%08X\X0\`, r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

// ---------------------------------------------------------------------------
// Parser
// ---------------------------------------------------------------------------

// file is a parsed exchange structure.
type file struct {
	header   map[string][]any
	entities map[int]*Entity
	order    []int
}

type parser struct {
	src []byte
	pos int
}

func (p *parser) errorf(format string, args ...any) error {
	line := 1 + bytes.Count(p.src[:p.pos], []byte{'\n'})
	return fmt.Errorf("line %d: %s", line, fmt.Sprintf(format, args...))
}

// skip advances past whitespace and /* comments */.
func (p *parser) skip() {
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			p.pos++
		case c == '/' && p.pos+1 < len(p.src) && p.src[p.pos+1] == '*':
			end := bytes.Index(p.src[p.pos+2:], []byte("*/"))
			if end < 0 {
				p.pos = len(p.src)
				return
			}
			p.pos += end + 4
		default:
			return
		}
	}
}

func (p *parser) peek() byte {
	p.skip()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) expect(c byte) error {
	if p.peek() != c {
		return p.errorf("expected %q", c)
	}
	p.pos++
	return nil
}

func isKeyword(c byte) bool {
	return c == '_' || c == '-' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}

func (p *parser) keyword() (string, error) {
	p.skip()
	start := p.pos
	for p.pos < len(p.src) && isKeyword(p.src[p.pos]) {
		p.pos++
	}
	if start == p.pos {
		return "", p.errorf("expected keyword")
	}
	return strings.ToUpper(string(p.src[start:p.pos])), nil
}

func (p *parser) integer() (int, error) {
	start := p.pos
	for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
		p.pos++
	}
	return strconv.Atoi(string(p.src[start:p.pos]))
}

// params parses "(a,b,...)".
func (p *parser) params() ([]any, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	var out []any
	if p.peek() == ')' {
		p.pos++
		return out, nil
	}
	for {
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		switch p.peek() {
		case ',':
			p.pos++
		case ')':
			p.pos++
			return out, nil
		default:
			return nil, p.errorf("expected ',' or ')'")
		}
	}
}

func (p *parser) value() (any, error) {
	c := p.peek()
	switch {
	case c == '\'':
		return p.stringValue()
	case c == '#':
		p.pos++
		n, err := p.integer()
		if err != nil {
			return nil, p.errorf("bad entity reference")
		}
		return Ref(n), nil
	case c == '$':
		p.pos++
		return Unset{}, nil
	case c == '*':
		p.pos++
		return Derived{}, nil
	case c == '.':
		p.pos++
		end := bytes.IndexByte(p.src[p.pos:], '.')
		if end < 0 {
			return nil, p.errorf("unterminated enumeration")
		}
		e := Enum(strings.ToUpper(string(p.src[p.pos : p.pos+end])))
		p.pos += end + 1
		return e, nil
	case c == '(':
		return p.params()
	case c == '-' || c == '+' || (c >= '0' && c <= '9'):
		return p.number()
	case isKeyword(c):
		name, err := p.keyword()
		if err != nil {
			return nil, err
		}
		ps, err := p.params()
		if err != nil {
			return nil, err
		}
		return Typed{Name: name, Params: ps}, nil
	}
	return nil, p.errorf("unexpected character %q", c)
}

func (p *parser) number() (float64, error) {
	start := p.pos
	p.pos++
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if (c >= '0' && c <= '9') || c == '.' || c == 'E' || c == 'e' || c == '-' || c == '+' {
			p.pos++
			continue
		}
		break
	}
	s := string(p.src[start:p.pos])
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, p.errorf("bad number %q", s)
	}
	return v, nil
}

func (p *parser) stringValue() (string, error) {
	p.pos++ // opening quote
	var raw []byte
	for {
		if p.pos >= len(p.src) {
			return "", p.errorf("unterminated string")
		}
		c := p.src[p.pos]
		p.pos++
		if c == '\'' {
			if p.pos < len(p.src) && p.src[p.pos] == '\'' {
				raw = append(raw, '\'')
				p.pos++
				continue
			}
			break
		}
		raw = append(raw, c)
	}
	return decodeString(raw)
}

// decodeString resolves \\, \X2\ and \X4\ directives.
func decodeString(raw []byte) (string, error) {
	if !bytes.ContainsRune(raw, '\\') {
		return string(raw), nil
	}
	var b strings.Builder
	for i := 0; i < len(raw); {
		if raw[i] != '\\' {
			b.WriteByte(raw[i])
			i++
			continue
		}
		rest := raw[i:]
		switch {
		case bytes.HasPrefix(rest, []byte(`\\`)):
			b.WriteByte('\\')
			i += 2
		case bytes.HasPrefix(rest, []byte(`\X2\`)), bytes.HasPrefix(rest, []byte(`\X4\`)):
			width := 4
			if rest[2] == '4' {
				width = 8
			}
			end := bytes.Index(rest, []byte(`\X0\`))
			if end < 0 {
				return "", fmt.Errorf("unterminated \\X%c\\ directive", rest[2])
			}
			hex := rest[4:end]
			if len(hex)%width != 0 {
				return "", fmt.Errorf("bad \\X%c\\ payload %q", rest[2], hex)
			}
			for j := 0; j < len(hex); j += width {
				r, err := strconv.ParseUint(string(hex[j:j+width]), 16, 32)
				if err != nil || !utf8.ValidRune(rune(r)) {
					return "", fmt.Errorf("bad code point %q", hex[j:j+width])
				}
				b.WriteRune(rune(r))
			}
			i += end + 4
		default:
			b.WriteByte('\\')
			i++
		}
	}
	return b.String(), nil
}

// parseFile parses a complete exchange structure.
func parseFile(src []byte) (*file, error) {
	p := &parser{src: src}
	f := &file{header: make(map[string][]any), entities: make(map[int]*Entity)}

	kw, err := p.keyword()
	if err != nil || kw != "ISO-10303-21" {
		return nil, fmt.Errorf("not an ISO 10303-21 file")
	}
	if err := p.expect(';'); err != nil {
		return nil, err
	}
	if kw, err := p.keyword(); err != nil || kw != "HEADER" {
		return nil, p.errorf("missing HEADER section")
	}
	if err := p.expect(';'); err != nil {
		return nil, err
	}
	for {
		kw, err := p.keyword()
		if err != nil {
			return nil, err
		}
		if kw == "ENDSEC" {
			break
		}
		ps, err := p.params()
		if err != nil {
			return nil, err
		}
		f.header[kw] = ps
		if err := p.expect(';'); err != nil {
			return nil, err
		}
	}
	if err := p.expect(';'); err != nil {
		return nil, err
	}
	if kw, err := p.keyword(); err != nil || kw != "DATA" {
		return nil, p.errorf("missing DATA section")
	}
	if err := p.expect(';'); err != nil {
		return nil, err
	}
	for {
		if p.peek() != '#' {
			kw, err := p.keyword()
			if err != nil || kw != "ENDSEC" {
				return nil, p.errorf("expected entity or ENDSEC")
			}
			if err := p.expect(';'); err != nil {
				return nil, err
			}
			break
		}
		e, err := p.entity()
		if err != nil {
			return nil, err
		}
		if _, dup := f.entities[e.ID]; dup {
			return nil, p.errorf("duplicate entity #%d", e.ID)
		}
		f.entities[e.ID] = e
		f.order = append(f.order, e.ID)
	}
	return f, nil
}

func (p *parser) entity() (*Entity, error) {
	p.pos++ // '#'
	id, err := p.integer()
	if err != nil {
		return nil, p.errorf("bad entity id")
	}
	if err := p.expect('='); err != nil {
		return nil, err
	}
	e := &Entity{ID: id}
	if p.peek() == '(' {
		p.pos++
		for p.peek() != ')' {
			name, err := p.keyword()
			if err != nil {
				return nil, err
			}
			ps, err := p.params()
			if err != nil {
				return nil, err
			}
			e.Complex = append(e.Complex, Typed{Name: name, Params: ps})
		}
		p.pos++
	} else {
		e.Name, err = p.keyword()
		if err != nil {
			return nil, err
		}
		e.Params, err = p.params()
		if err != nil {
			return nil, err
		}
	}
	if err := p.expect(';'); err != nil {
		return nil, err
	}
	return e, nil
}
