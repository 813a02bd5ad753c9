// Package catalog exposes the static directory of per-cinema permissions.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultDocument []byte

// ErrUnknownResource indicates a resource type that is not part of the catalog.
var ErrUnknownResource = errors.New("catalog: unknown resource type")

// Permission is a single grantable capability.
type Permission struct {
	Code         string `json:"code" yaml:"code"`
	ResourceType string `json:"resource_type" yaml:"-"`
	ActionType   string `json:"action_type" yaml:"action"`
	Name         string `json:"name" yaml:"name"`
	Description  string `json:"description" yaml:"description"`
}

// Group bundles the permissions of one resource type.
type Group struct {
	ResourceType string       `json:"resource_type" yaml:"resource"`
	Label        string       `json:"label" yaml:"-"`
	Permissions  []Permission `json:"permissions" yaml:"permissions"`
}

type document struct {
	Groups []Group `yaml:"groups"`
}

// Catalog is an immutable, indexed permission directory.
type Catalog struct {
	groups  []Group
	byCode  map[string]Permission
	byGroup map[string]int
}

// Default parses the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultDocument)
}

// MustDefault is Default for process start-up.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

// Parse builds a Catalog from a YAML document.
func Parse(raw []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}
	return New(doc.Groups)
}

// New validates and indexes the given groups.
func New(groups []Group) (*Catalog, error) {
	title := cases.Title(language.English)
	c := &Catalog{
		groups:  make([]Group, 0, len(groups)),
		byCode:  make(map[string]Permission),
		byGroup: make(map[string]int, len(groups)),
	}
	for _, g := range groups {
		resource := NormalizeCode(g.ResourceType)
		if resource == "" {
			return nil, errors.New("catalog: group resource type required")
		}
		if _, dup := c.byGroup[resource]; dup {
			return nil, fmt.Errorf("catalog: duplicate group %s", resource)
		}
		label := g.Label
		if label == "" {
			label = title.String(strings.ReplaceAll(strings.ToLower(resource), "_", " "))
		}
		group := Group{ResourceType: resource, Label: label, Permissions: make([]Permission, 0, len(g.Permissions))}
		for _, p := range g.Permissions {
			p.Code = NormalizeCode(p.Code)
			if p.Code == "" {
				return nil, fmt.Errorf("catalog: empty permission code in group %s", resource)
			}
			if _, dup := c.byCode[p.Code]; dup {
				return nil, fmt.Errorf("catalog: duplicate permission %s", p.Code)
			}
			if p.ResourceType != "" && NormalizeCode(p.ResourceType) != resource {
				return nil, fmt.Errorf("catalog: permission %s declared under %s", p.Code, resource)
			}
			p.ResourceType = resource
			p.ActionType = NormalizeCode(p.ActionType)
			c.byCode[p.Code] = p
			group.Permissions = append(group.Permissions, p)
		}
		c.byGroup[resource] = len(c.groups)
		c.groups = append(c.groups, group)
	}
	return c, nil
}

// Groups returns a copy of the catalog grouped by resource type.
func (c *Catalog) Groups() []Group {
	out := make([]Group, len(c.groups))
	for i, g := range c.groups {
		perms := make([]Permission, len(g.Permissions))
		copy(perms, g.Permissions)
		g.Permissions = perms
		out[i] = g
	}
	return out
}

// Group returns the group for resourceType.
func (c *Catalog) Group(resourceType string) (Group, error) {
	idx, ok := c.byGroup[NormalizeCode(resourceType)]
	if !ok {
		return Group{}, fmt.Errorf("%w: %s", ErrUnknownResource, resourceType)
	}
	g := c.groups[idx]
	perms := make([]Permission, len(g.Permissions))
	copy(perms, g.Permissions)
	g.Permissions = perms
	return g, nil
}

// Codes lists the permission codes of a resource group in catalog order.
func (c *Catalog) Codes(resourceType string) ([]string, error) {
	g, err := c.Group(resourceType)
	if err != nil {
		return nil, err
	}
	codes := make([]string, 0, len(g.Permissions))
	for _, p := range g.Permissions {
		codes = append(codes, p.Code)
	}
	return codes, nil
}

// Lookup finds a permission by code.
func (c *Catalog) Lookup(code string) (Permission, bool) {
	p, ok := c.byCode[NormalizeCode(code)]
	return p, ok
}

// Has reports whether code is part of the catalog.
func (c *Catalog) Has(code string) bool {
	_, ok := c.byCode[NormalizeCode(code)]
	return ok
}

// Len returns the number of permissions.
func (c *Catalog) Len() int {
	return len(c.byCode)
}

// NormalizeCode trims and upper-cases a permission or resource code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
