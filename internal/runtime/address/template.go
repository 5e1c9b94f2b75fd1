// Package address compiles subject templates such as "sensors.{location}.{device_id}"
// into a renderer and a parser for concrete subjects.
package address

import (
	"strings"

	errspkg "github.com/drblury/contractflow/internal/runtime/errors"
)

const (
	// Delimiter separates subject tokens.
	Delimiter = "."
	// SingleWildcard matches exactly one token in a subscription pattern.
	SingleWildcard = "*"
	// FullWildcard matches one or more trailing tokens in a subscription pattern.
	FullWildcard = ">"
)

// SegmentKind tells literal text apart from a parameter slot.
type SegmentKind uint8

const (
	LiteralSegment SegmentKind = iota
	ParamSegment
)

// Segment is a piece of a token: either literal text or a named parameter.
type Segment struct {
	Kind  SegmentKind
	Value string
}

// Token is the part of a template between two delimiters. Most tokens hold a
// single segment; mixed tokens such as "v{major}" hold several.
type Token struct {
	Segments []Segment
}

// IsLiteral reports whether the token contains no parameter.
func (t Token) IsLiteral() bool {
	return len(t.Segments) == 1 && t.Segments[0].Kind == LiteralSegment
}

// IsParam reports whether the token is exactly one parameter.
func (t Token) IsParam() bool {
	return len(t.Segments) == 1 && t.Segments[0].Kind == ParamSegment
}

func (t Token) prefix() string {
	if t.Segments[0].Kind == LiteralSegment {
		return t.Segments[0].Value
	}
	return ""
}

func (t Token) suffix() string {
	last := t.Segments[len(t.Segments)-1]
	if last.Kind == LiteralSegment {
		return last.Value
	}
	return ""
}

// match extracts the parameter values of one subject token into values.
func (t Token) match(part string, values map[string]string) bool {
	rest := part
	for i, seg := range t.Segments {
		if seg.Kind == LiteralSegment {
			if !strings.HasPrefix(rest, seg.Value) {
				return false
			}
			rest = rest[len(seg.Value):]
			continue
		}

		var value string
		if i+1 == len(t.Segments) {
			value, rest = rest, ""
		} else {
			idx := strings.Index(rest, t.Segments[i+1].Value)
			if idx < 0 {
				return false
			}
			value, rest = rest[:idx], rest[idx:]
		}
		if !validValue(value) {
			return false
		}
		if values != nil {
			values[seg.Value] = value
		}
	}
	return rest == ""
}

// Template is a compiled subject template. It is immutable and safe for
// concurrent use.
type Template struct {
	raw    string
	tokens []Token
	params []string
}

// Compile parses raw into a Template.
func Compile(raw string) (*Template, error) {
	if raw == "" {
		return nil, compileErr(raw, "template is empty")
	}

	parts := strings.Split(raw, Delimiter)
	tmpl := &Template{
		raw:    raw,
		tokens: make([]Token, 0, len(parts)),
	}
	seen := make(map[string]struct{})

	for i, part := range parts {
		if part == "" {
			return nil, compileErr(raw, emptyTokenReason(i, len(parts)))
		}
		segments, err := parseToken(raw, part)
		if err != nil {
			return nil, err
		}
		for _, seg := range segments {
			if seg.Kind != ParamSegment {
				continue
			}
			if _, dup := seen[seg.Value]; dup {
				return nil, compileErr(raw, "parameter {"+seg.Value+"} is declared more than once")
			}
			seen[seg.Value] = struct{}{}
			tmpl.params = append(tmpl.params, seg.Value)
		}
		tmpl.tokens = append(tmpl.tokens, Token{Segments: segments})
	}

	return tmpl, nil
}

// MustCompile is like Compile but panics on error. Intended for package-level
// contract declarations.
func MustCompile(raw string) *Template {
	tmpl, err := Compile(raw)
	if err != nil {
		panic(err)
	}
	return tmpl
}

func parseToken(raw, part string) ([]Segment, error) {
	var (
		segments []Segment
		literal  strings.Builder
	)

	flush := func() {
		if literal.Len() > 0 {
			segments = append(segments, Segment{Kind: LiteralSegment, Value: literal.String()})
			literal.Reset()
		}
	}

	for i := 0; i < len(part); {
		c := part[i]
		switch {
		case c == '{':
			end := strings.IndexAny(part[i+1:], "{}")
			if end < 0 || part[i+1+end] != '}' {
				return nil, compileErr(raw, "unbalanced '{' in token "+quote(part))
			}
			name := part[i+1 : i+1+end]
			if name == "" {
				return nil, compileErr(raw, "empty parameter name in token "+quote(part))
			}
			if !validName(name) {
				return nil, compileErr(raw, "invalid parameter name "+quote(name))
			}
			if literal.Len() == 0 && len(segments) > 0 && segments[len(segments)-1].Kind == ParamSegment {
				return nil, compileErr(raw, "adjacent parameters in token "+quote(part))
			}
			flush()
			segments = append(segments, Segment{Kind: ParamSegment, Value: name})
			i += end + 2
		case c == '}':
			return nil, compileErr(raw, "unbalanced '}' in token "+quote(part))
		case reservedByte(c):
			return nil, compileErr(raw, "reserved character "+quote(string(c))+" in token "+quote(part))
		default:
			literal.WriteByte(c)
			i++
		}
	}
	flush()

	return segments, nil
}

// String returns the raw template.
func (t *Template) String() string { return t.raw }

// Params returns parameter names in declaration order.
func (t *Template) Params() []string {
	out := make([]string, len(t.params))
	copy(out, t.params)
	return out
}

// Tokens returns a copy of the compiled tokens.
func (t *Template) Tokens() []Token {
	out := make([]Token, len(t.tokens))
	for i, tok := range t.tokens {
		segs := make([]Segment, len(tok.Segments))
		copy(segs, tok.Segments)
		out[i] = Token{Segments: segs}
	}
	return out
}

// HasParams reports whether the template declares at least one parameter.
func (t *Template) HasParams() bool { return len(t.params) > 0 }

// Render substitutes values into the template. Templates without parameters
// render to the raw template.
func (t *Template) Render(values map[string]string) (string, error) {
	if len(t.params) == 0 {
		return t.raw, nil
	}

	var b strings.Builder
	b.Grow(len(t.raw))
	for i, tok := range t.tokens {
		if i > 0 {
			b.WriteString(Delimiter)
		}
		for j, seg := range tok.Segments {
			if seg.Kind == LiteralSegment {
				b.WriteString(seg.Value)
				continue
			}
			value, ok := values[seg.Value]
			if !ok {
				return "", &errspkg.MissingParameterError{Template: t.raw, Param: seg.Value}
			}
			if !validValue(value) {
				return "", &errspkg.InvalidParameterValueError{Template: t.raw, Param: seg.Value, Value: value}
			}
			// The value must not swallow the literal that anchors the next
			// parameter, otherwise Parse cannot recover it.
			if j+1 < len(tok.Segments) {
				next := tok.Segments[j+1].Value
				if strings.Index(value+next, next) != len(value) {
					return "", &errspkg.InvalidParameterValueError{Template: t.raw, Param: seg.Value, Value: value}
				}
			}
			b.WriteString(value)
		}
	}
	return b.String(), nil
}

// Parse extracts parameter values from a concrete subject.
func (t *Template) Parse(subject string) (map[string]string, error) {
	parts := strings.Split(subject, Delimiter)
	if len(parts) != len(t.tokens) {
		return nil, &errspkg.SubjectMismatchError{Template: t.raw, Subject: subject}
	}

	values := make(map[string]string, len(t.params))
	for i, tok := range t.tokens {
		if !tok.match(parts[i], values) {
			return nil, &errspkg.SubjectMismatchError{Template: t.raw, Subject: subject}
		}
	}
	return values, nil
}

// Matches reports whether subject fits the template.
func (t *Template) Matches(subject string) bool {
	parts := strings.Split(subject, Delimiter)
	if len(parts) != len(t.tokens) {
		return false
	}
	for i, tok := range t.tokens {
		if !tok.match(parts[i], nil) {
			return false
		}
	}
	return true
}

// Pattern returns the subscription pattern for the template: every token that
// holds a parameter becomes a single-token wildcard.
func (t *Template) Pattern() string {
	if len(t.params) == 0 {
		return t.raw
	}
	parts := make([]string, len(t.tokens))
	for i, tok := range t.tokens {
		if tok.IsLiteral() {
			parts[i] = tok.Segments[0].Value
		} else {
			parts[i] = SingleWildcard
		}
	}
	return strings.Join(parts, Delimiter)
}

// Overlaps reports whether some concrete subject could be produced by both
// templates. Templates with different token counts never overlap. For two
// mixed tokens only the leading and trailing literals are compared, so the
// check errs towards reporting a collision.
func (t *Template) Overlaps(other *Template) bool {
	if other == nil || len(t.tokens) != len(other.tokens) {
		return false
	}
	for i := range t.tokens {
		if !tokensOverlap(t.tokens[i], other.tokens[i]) {
			return false
		}
	}
	return true
}

// Collides reports whether brokers could not tell the two templates apart:
// either a concrete subject matches both, or both subscribe the same
// wildcard pattern.
func (t *Template) Collides(other *Template) bool {
	if other == nil {
		return false
	}
	return t.Overlaps(other) || t.Pattern() == other.Pattern()
}

func tokensOverlap(a, b Token) bool {
	switch {
	case a.IsLiteral() && b.IsLiteral():
		return a.Segments[0].Value == b.Segments[0].Value
	case a.IsLiteral():
		return b.match(a.Segments[0].Value, nil)
	case b.IsLiteral():
		return a.match(b.Segments[0].Value, nil)
	}

	pa, pb := a.prefix(), b.prefix()
	if !strings.HasPrefix(pa, pb) && !strings.HasPrefix(pb, pa) {
		return false
	}
	sa, sb := a.suffix(), b.suffix()
	return strings.HasSuffix(sa, sb) || strings.HasSuffix(sb, sa)
}

// SubjectMatches reports whether subject matches a subscription pattern that
// may contain "*" (one token) and ">" (one or more trailing tokens).
func SubjectMatches(pattern, subject string) bool {
	if pattern == subject {
		return true
	}
	pTok := strings.Split(pattern, Delimiter)
	sTok := strings.Split(subject, Delimiter)
	for i, pt := range pTok {
		if pt == FullWildcard {
			return i < len(sTok)
		}
		if i >= len(sTok) {
			return false
		}
		if pt != SingleWildcard && pt != sTok[i] {
			return false
		}
	}
	return len(sTok) == len(pTok)
}

func validName(name string) bool {
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func validValue(value string) bool {
	if value == "" {
		return false
	}
	for i := 0; i < len(value); i++ {
		if value[i] == '.' || reservedByte(value[i]) {
			return false
		}
	}
	return true
}

func reservedByte(c byte) bool {
	switch c {
	case '*', '>', ' ', '\t', '\r', '\n':
		return true
	}
	return false
}

func emptyTokenReason(index, total int) string {
	switch index {
	case 0:
		return "leading delimiter"
	case total - 1:
		return "trailing delimiter"
	}
	return "empty token between delimiters"
}

func compileErr(raw, reason string) error {
	return &errspkg.CompileError{Template: raw, Reason: reason}
}

func quote(s string) string { return `"` + s + `"` }
