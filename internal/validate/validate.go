// Package validate turns free-text model answers into strictly typed values,
// rejecting anything outside the type and category grammar.
package validate

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/phobologic/gentleman/internal/vocab"
)

// Kind identifies the shape of a validated answer.
type Kind int

const (
	KindTypeToken Kind = iota + 1
	KindTypeList
	KindTagList
	KindDescription
	KindCategory
)

func (k Kind) String() string {
	switch k {
	case KindTypeToken:
		return "type"
	case KindTypeList:
		return "type list"
	case KindTagList:
		return "tag list"
	case KindDescription:
		return "description"
	case KindCategory:
		return "category"
	}
	return "unknown"
}

// Value is a validated answer. The set of implementations is closed:
// TypeToken, TypeList, TagList, Description and Category.
type Value interface {
	Kind() Kind
	isValue()
}

type (
	TypeToken   string
	TypeList    []string
	TagList     []string
	Description string
	Category    string
)

func (TypeToken) Kind() Kind   { return KindTypeToken }
func (TypeList) Kind() Kind    { return KindTypeList }
func (TagList) Kind() Kind     { return KindTagList }
func (Description) Kind() Kind { return KindDescription }
func (Category) Kind() Kind    { return KindCategory }

func (TypeToken) isValue()   {}
func (TypeList) isValue()    {}
func (TagList) isValue()     {}
func (Description) isValue() {}
func (Category) isValue()    {}

// ValidationError carries a human-readable reason that is fed back to the
// model on the next attempt.
type ValidationError struct {
	Kind   Kind
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func invalid(kind Kind, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Validator checks answers against a type vocabulary and category set.
type Validator struct {
	vocab      *vocab.Vocabulary
	categories *vocab.Categories
}

// New returns a Validator over the given grammar.
func New(v *vocab.Vocabulary, c *vocab.Categories) *Validator {
	return &Validator{vocab: v, categories: c}
}

// Categories returns the configured category set.
func (v *Validator) Categories() *vocab.Categories {
	return v.categories
}

// Vocabulary returns the configured type vocabulary.
func (v *Validator) Vocabulary() *vocab.Vocabulary {
	return v.vocab
}

// TypeToken validates a single type answer. Tokens from the vocabulary and
// the file's own import tokens are accepted.
func (v *Validator) TypeToken(answer string, imports map[string]struct{}) (TypeToken, error) {
	tok, err := vocab.Sanitize(stripFence(answer))
	if err != nil {
		return "", invalid(KindTypeToken, "Invalid type: %v", err)
	}
	if v.vocab.Contains(tok) {
		return TypeToken(tok), nil
	}
	if _, ok := imports[tok]; ok {
		return TypeToken(tok), nil
	}
	return "", invalid(KindTypeToken, "Invalid type: %q is not an accepted type.", tok)
}

// TypeList validates a list of type answers. It strips bracket and quote
// decoration and splits on top-level commas. Length is not checked here.
func (v *Validator) TypeList(answer string, imports map[string]struct{}) (TypeList, error) {
	body := strings.TrimSpace(stripFence(answer))
	body = strings.Trim(body, "\"'`")
	body = strings.TrimSpace(body)
	if enclosed(body, '[', ']') || enclosed(body, '(', ')') {
		body = strings.TrimSpace(body[1 : len(body)-1])
	}
	if body == "" {
		return TypeList{}, nil
	}

	parts, err := splitTopLevel(body)
	if err != nil {
		return nil, invalid(KindTypeList, "Invalid type list: %v", err)
	}

	out := make(TypeList, 0, len(parts))
	for i, part := range parts {
		tok, err := v.TypeToken(part, imports)
		if err != nil {
			return nil, invalid(KindTypeList, "Invalid type at position %d: %v", i+1, err)
		}
		out = append(out, string(tok))
	}
	return out, nil
}

// EncodeTypeList renders tokens in the list form TypeList accepts.
func EncodeTypeList(tokens []string) string {
	return "[" + strings.Join(tokens, ", ") + "]"
}

// ParseTagList validates a list literal of strings, e.g. ['io', "files"].
// Python string escapes are honoured and exactly one document is accepted.
func ParseTagList(answer string) (TagList, error) {
	text := strings.TrimSpace(stripFence(answer))

	normalized, err := pyStringsToYAML(text)
	if err != nil {
		return nil, invalid(KindTagList, "Invalid Python literal for tags list: %v", err)
	}

	dec := yaml.NewDecoder(strings.NewReader(normalized))
	var doc yaml.Node
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, invalid(KindTagList, "Invalid Python literal for tags list: empty answer")
		}
		return nil, invalid(KindTagList, "Invalid Python literal for tags list: %v", err)
	}
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, invalid(KindTagList, "Invalid Python literal for tags list: trailing content after the list")
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, invalid(KindTagList, "Invalid Python literal for tags list: empty answer")
	}
	root := doc.Content[0]
	if root.Kind != yaml.SequenceNode || root.Style&yaml.FlowStyle == 0 {
		return nil, invalid(KindTagList, "Invalid Python literal for tags list: expected a list of strings, got %q", text)
	}

	tags := make(TagList, 0, len(root.Content))
	for i, item := range root.Content {
		quoted := item.Style&(yaml.SingleQuotedStyle|yaml.DoubleQuotedStyle) != 0
		if item.Kind != yaml.ScalarNode || !quoted {
			return nil, invalid(KindTagList, "Invalid Python literal for tags list: element %d is not a string", i+1)
		}
		tags = append(tags, item.Value)
	}
	return tags, nil
}

// pyStringsToYAML rewrites every Python string literal in s as a YAML
// double-quoted scalar holding the same value. Text outside quotes is
// copied unchanged.
func pyStringsToYAML(s string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(s); {
		quote := s[i]
		if quote != '\'' && quote != '"' {
			b.WriteByte(s[i])
			i++
			continue
		}

		var val strings.Builder
		closed := false
		j := i + 1
		for j < len(s) && !closed {
			switch c := s[j]; {
			case c == '\\' && j+1 < len(s):
				switch n := s[j+1]; n {
				case '\\', '\'', '"':
					val.WriteByte(n)
				case 'n':
					val.WriteByte('\n')
				case 't':
					val.WriteByte('\t')
				case 'r':
					val.WriteByte('\r')
				default:
					// Unknown escapes keep their backslash.
					val.WriteByte(c)
					val.WriteByte(n)
				}
				j += 2
			case c == quote:
				closed = true
				j++
			case c == '\n':
				return "", errors.New("unterminated string literal")
			default:
				val.WriteByte(c)
				j++
			}
		}
		if !closed {
			return "", errors.New("unterminated string literal")
		}
		b.WriteString(strconv.Quote(val.String()))
		i = j
	}
	return b.String(), nil
}

func stripFence(s string) string {
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// enclosed reports whether s starts with open and the matching close is the
// last byte of s.
func enclosed(s string, open, close byte) bool {
	if len(s) < 2 || s[0] != open || s[len(s)-1] != close {
		return false
	}
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 && i != len(s)-1 {
				return false
			}
		}
	}
	return depth == 0
}

// splitTopLevel splits on commas that are not nested in brackets.
func splitTopLevel(s string) ([]string, error) {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced brackets in %q", s)
			}
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced brackets in %q", s)
	}
	if last := strings.TrimSpace(s[start:]); last != "" {
		parts = append(parts, last)
	}
	return parts, nil
}
