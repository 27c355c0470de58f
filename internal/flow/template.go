// README: Prompt template parsing and literal placeholder substitution.
package flow

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}\}|\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

type segment struct {
	text  string
	field string
}

// Template is a parsed prompt template: literal text interleaved with field references.
type Template struct {
	source   string
	segments []segment
}

// ParseTemplate splits text into literal segments and placeholders.
// Anything that opens with "{{" but is not a well-formed placeholder is rejected.
func ParseTemplate(text string) (*Template, error) {
	t := &Template{source: text}
	pos := 0
	for _, m := range placeholderRe.FindAllStringSubmatchIndex(text, -1) {
		if err := checkLiteral(text[pos:m[0]]); err != nil {
			return nil, err
		}
		if m[0] > pos {
			t.segments = append(t.segments, segment{text: text[pos:m[0]]})
		}
		name := ""
		if m[2] >= 0 {
			name = text[m[2]:m[3]]
		} else {
			name = text[m[4]:m[5]]
		}
		t.segments = append(t.segments, segment{field: name})
		pos = m[1]
	}
	if err := checkLiteral(text[pos:]); err != nil {
		return nil, err
	}
	if pos < len(text) {
		t.segments = append(t.segments, segment{text: text[pos:]})
	}
	return t, nil
}

func checkLiteral(s string) error {
	if i := strings.Index(s, "{{"); i >= 0 {
		end := i + 20
		if end > len(s) {
			end = len(s)
		}
		return fmt.Errorf("%w: malformed placeholder near %q", ErrTemplateSyntax, s[i:end])
	}
	return nil
}

// Source returns the template text as registered.
func (t *Template) Source() string { return t.source }

// Fields returns the referenced field names, deduplicated, in order of first use.
func (t *Template) Fields() []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range t.segments {
		if s.field != "" && !seen[s.field] {
			seen[s.field] = true
			out = append(out, s.field)
		}
	}
	return out
}

// Render substitutes values into the template. Values are inserted verbatim and never re-expanded.
func (t *Template) Render(values Values) string {
	var b strings.Builder
	for _, s := range t.segments {
		if s.field == "" {
			b.WriteString(s.text)
			continue
		}
		b.WriteString(formatValue(values[s.field]))
	}
	return b.String()
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case []string:
		return strings.Join(x, ", ")
	default:
		return fmt.Sprint(x)
	}
}
