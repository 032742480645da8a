// Package style maps OSM tags to draw colors and decides which features are
// drawn as filled areas.
package style

import (
	"bufio"
	"errors"
	"fmt"
	"image/color"
	"io"
	"os"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// ErrConfig reports an unreadable or malformed style source.
var ErrConfig = errors.New("style config error")

// DefaultColor is used for features no rule matches.
var DefaultColor = color.RGBA{R: 173, G: 216, B: 230, A: 255}

// EnclosedTags lists the tag keys that make a feature an area.
var EnclosedTags = []string{"building", "park", "garden", "leisure", "landuse", "natural", "historic"}

var enclosed = func() map[string]bool {
	m := make(map[string]bool, len(EnclosedTags))
	for _, k := range EnclosedTags {
		m[k] = true
	}
	return m
}()

// IsEnclosed reports whether any tag key marks the feature as an area.
func IsEnclosed(tags map[string]string) bool {
	for k := range tags {
		if enclosed[k] {
			return true
		}
	}
	return false
}

// Rule matches features carrying Key, and when Value is set, only those
// whose Key has exactly that value.
type Rule struct {
	Key   string
	Value string
	Color color.RGBA
}

// Matches reports whether tags satisfy the rule.
func (r Rule) Matches(tags map[string]string) bool {
	v, ok := tags[r.Key]
	if !ok {
		return false
	}
	return r.Value == "" || v == r.Value
}

func (r Rule) String() string {
	if r.Value != "" {
		return r.Key + "=" + r.Value
	}
	return r.Key
}

// Table is an ordered list of rules. The first matching rule wins.
type Table struct {
	rules    []Rule
	fallback color.RGBA
}

// NewTable builds a table from rules in precedence order.
func NewTable(rules []Rule) *Table {
	return &Table{rules: append([]Rule(nil), rules...), fallback: DefaultColor}
}

// Resolve returns the color of the first rule matching tags, or the fallback.
func (t *Table) Resolve(tags map[string]string) color.RGBA {
	for _, r := range t.rules {
		if r.Matches(tags) {
			return r.Color
		}
	}
	return t.fallback
}

// Rules returns a copy of the rules in order.
func (t *Table) Rules() []Rule {
	return append([]Rule(nil), t.rules...)
}

// Len returns the number of rules.
func (t *Table) Len() int {
	return len(t.rules)
}

// Load reads a style file from path.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open style file: %w", ErrConfig, err)
	}
	defer f.Close()

	t, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Parse reads "selector:#rrggbb" lines, where selector is a tag key or
// key=value. Blank lines and lines starting with '#' are skipped. Any other
// malformed line, and any repeated selector, is an error.
func Parse(r io.Reader) (*Table, error) {
	var rules []Rule
	seen := make(map[string]int)

	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		rule, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrConfig, lineNo, err)
		}
		if prev, dup := seen[rule.String()]; dup {
			return nil, fmt.Errorf("%w: line %d: %q already defined on line %d", ErrConfig, lineNo, rule.String(), prev)
		}
		seen[rule.String()] = lineNo
		rules = append(rules, rule)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to read style: %w", ErrConfig, err)
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("%w: no rules defined", ErrConfig)
	}

	return NewTable(rules), nil
}

func parseLine(line string) (Rule, error) {
	selector, hex, ok := strings.Cut(line, ":")
	if !ok || strings.Contains(hex, ":") {
		return Rule{}, fmt.Errorf("expected selector:#rrggbb, got %q", line)
	}

	selector = strings.TrimSpace(selector)
	key, value, hasValue := strings.Cut(selector, "=")
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" || (hasValue && value == "") {
		return Rule{}, fmt.Errorf("invalid selector %q", selector)
	}

	hex = strings.TrimSpace(hex)
	if !strings.HasPrefix(hex, "#") {
		hex = "#" + hex
	}
	if len(hex) != 7 {
		return Rule{}, fmt.Errorf("invalid color %q: want #rrggbb", hex)
	}
	c, err := colorful.Hex(hex)
	if err != nil {
		return Rule{}, fmt.Errorf("invalid color %q: %w", hex, err)
	}
	red, green, blue := c.RGB255()

	return Rule{Key: key, Value: value, Color: color.RGBA{R: red, G: green, B: blue, A: 255}}, nil
}
