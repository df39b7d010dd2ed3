package vocab

import (
	"regexp"
	"strings"
)

// DefaultCategories is the closed set of function categories.
var DefaultCategories = []string{
	"Constructors/initializers",
	"Getters/Setters/Properties",
	"Pure utilities",
	"I/O functions",
	"Controllers",
	"Data access / repository",
	"API endpoints / handlers / CLIs",
	"Event/callback/listener",
	"Recursion / DP",
	"Concurrency/async",
	"Tests",
	"Helpers",
}

var numberingRe = regexp.MustCompile(`^\d+\s*[.)]\s*`)

// Categories is a case-insensitive lookup over a closed category list.
type Categories struct {
	names []string
	index map[string]string
}

// NewCategories builds a category set. Names keep their given spelling.
func NewCategories(names []string) *Categories {
	c := &Categories{index: make(map[string]string, len(names))}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		c.names = append(c.names, n)
		c.index[strings.ToLower(n)] = n
	}
	return c
}

// Names returns the categories in configured order.
func (c *Categories) Names() []string {
	return append([]string(nil), c.names...)
}

// Match trims quotes, whitespace, trailing periods and list numbering from
// answer and returns the canonical category name it names.
func (c *Categories) Match(answer string) (string, bool) {
	s := strings.TrimSpace(answer)
	s = strings.Trim(s, quoteCutset)
	s = strings.TrimSpace(s)
	s = numberingRe.ReplaceAllString(s, "")
	s = strings.TrimRight(s, ".")
	s = strings.TrimSpace(s)
	name, ok := c.index[strings.ToLower(s)]
	return name, ok
}
