// Package styles is the catalog of style labels offered to users.
package styles

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed styles.yaml
var builtin []byte

// Category groups related styles.
type Category struct {
	Name   string   `yaml:"name" json:"name"`
	Styles []string `yaml:"styles" json:"styles"`
}

// Catalog is an ordered set of style categories.
type Catalog struct {
	Default    string     `yaml:"default" json:"default"`
	Categories []Category `yaml:"categories" json:"categories"`

	index map[string]string
}

// Parse decodes a catalog from YAML.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse style catalog: %w", err)
	}

	c.index = make(map[string]string)
	for _, cat := range c.Categories {
		for _, s := range cat.Styles {
			key := strings.ToLower(s)
			if _, dup := c.index[key]; dup {
				return nil, fmt.Errorf("style %q listed twice", s)
			}
			c.index[key] = cat.Name
		}
	}
	if len(c.index) == 0 {
		return nil, errors.New("style catalog defines no styles")
	}
	if c.Default != "" && !c.Valid(c.Default) {
		return nil, fmt.Errorf("default style %q is not in the catalog", c.Default)
	}
	return &c, nil
}

// Builtin returns the embedded catalog.
func Builtin() *Catalog {
	c, err := Parse(builtin)
	if err != nil {
		panic(err)
	}
	return c
}

// All returns every style in catalog order.
func (c *Catalog) All() []string {
	var out []string
	for _, cat := range c.Categories {
		out = append(out, cat.Styles...)
	}
	return out
}

// CategoryOf returns the category of style, matched case-insensitively.
func (c *Catalog) CategoryOf(style string) (string, bool) {
	name, ok := c.index[strings.ToLower(strings.TrimSpace(style))]
	return name, ok
}

// Valid reports whether style is in the catalog.
func (c *Catalog) Valid(style string) bool {
	_, ok := c.CategoryOf(style)
	return ok
}

// Canonical returns the catalog spelling of style.
func (c *Catalog) Canonical(style string) (string, bool) {
	for _, cat := range c.Categories {
		for _, s := range cat.Styles {
			if strings.EqualFold(s, strings.TrimSpace(style)) {
				return s, true
			}
		}
	}
	return "", false
}
