// Package catalog translates the configurable pick-lists (status, priority,
// impact, department, type, source) between opaque identifiers and the
// values the ticket engine understands.
package catalog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/deskflow/ticket-ingest/internal/domain"
)

// Kind names one pick-list.
type Kind string

const (
	KindStatus     Kind = "status"
	KindPriority   Kind = "priority"
	KindImpact     Kind = "impact"
	KindDepartment Kind = "department"
	KindType       Kind = "type"
	KindSource     Kind = "source"
)

// Item is one entry of a pick-list.
type Item struct {
	ID    string `yaml:"id" json:"id"`
	Label string `yaml:"label" json:"label"`
	Value string `yaml:"value" json:"value"`
}

// Defaults names, by value, the entries applied to new tickets.
type Defaults struct {
	Status     string            `yaml:"status"`
	Priority   string            `yaml:"priority"`
	Impact     string            `yaml:"impact"`
	Department string            `yaml:"department"`
	Type       string            `yaml:"type"`
	Sources    map[string]string `yaml:"sources"`
}

type file struct {
	Statuses    []Item   `yaml:"statuses"`
	Priorities  []Item   `yaml:"priorities"`
	Impacts     []Item   `yaml:"impacts"`
	Departments []Item   `yaml:"departments"`
	Types       []Item   `yaml:"types"`
	Sources     []Item   `yaml:"sources"`
	Defaults    Defaults `yaml:"defaults"`
}

// Classification is the set of catalog ids stamped on a new ticket.
type Classification struct {
	StatusID     string
	PriorityID   string
	ImpactID     string
	DepartmentID string
	TypeID       string
	SourceID     string
}

// Catalog is an immutable, validated set of pick-lists.
type Catalog struct {
	lists    map[Kind][]Item
	byID     map[Kind]map[string]Item
	byValue  map[Kind]map[string]Item
	defaults Defaults
}

// Load reads the catalog from a YAML file, or returns the built-in catalog
// when path is empty.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(raw)
}

// Parse builds a catalog from YAML content.
func Parse(raw []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return build(f)
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := build(defaultFile())
	if err != nil {
		panic(fmt.Sprintf("built-in catalog invalid: %v", err))
	}
	return c
}

func build(f file) (*Catalog, error) {
	c := &Catalog{
		lists: map[Kind][]Item{
			KindStatus:     f.Statuses,
			KindPriority:   f.Priorities,
			KindImpact:     f.Impacts,
			KindDepartment: f.Departments,
			KindType:       f.Types,
			KindSource:     f.Sources,
		},
		byID:     map[Kind]map[string]Item{},
		byValue:  map[Kind]map[string]Item{},
		defaults: f.Defaults,
	}
	for kind, items := range c.lists {
		if len(items) == 0 {
			return nil, fmt.Errorf("catalog: %s list is empty", kind)
		}
		c.byID[kind] = make(map[string]Item, len(items))
		c.byValue[kind] = make(map[string]Item, len(items))
		for _, item := range items {
			if item.ID == "" || item.Value == "" {
				return nil, fmt.Errorf("catalog: %s entry needs id and value", kind)
			}
			if _, dup := c.byID[kind][item.ID]; dup {
				return nil, fmt.Errorf("catalog: duplicate %s id %q", kind, item.ID)
			}
			c.byID[kind][item.ID] = item
			c.byValue[kind][item.Value] = item
		}
	}
	for _, v := range []domain.StatusValue{domain.StatusOpen, domain.StatusPending, domain.StatusClosed} {
		if _, ok := c.byValue[KindStatus][string(v)]; !ok {
			return nil, fmt.Errorf("catalog: status value %q missing", v)
		}
	}
	for _, item := range f.Statuses {
		if _, err := domain.ParseStatusValue(item.Value); err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
	}
	if _, err := c.DefaultClassification(domain.OriginEmail); err != nil {
		return nil, err
	}
	return c, nil
}

// Items returns the entries of one pick-list.
func (c *Catalog) Items(kind Kind) []Item {
	return append([]Item(nil), c.lists[kind]...)
}

// Has reports whether id exists in the pick-list.
func (c *Catalog) Has(kind Kind, id string) bool {
	_, ok := c.byID[kind][id]
	return ok
}

// Label returns the display label of an id, or the id itself when unknown.
func (c *Catalog) Label(kind Kind, id string) string {
	if item, ok := c.byID[kind][id]; ok && item.Label != "" {
		return item.Label
	}
	return id
}

// StatusID translates a status value to its configured identifier.
func (c *Catalog) StatusID(v domain.StatusValue) (string, error) {
	item, ok := c.byValue[KindStatus][string(v)]
	if !ok {
		return "", fmt.Errorf("catalog: no status with value %q", v)
	}
	return item.ID, nil
}

// StatusValue translates a configured status identifier to its value.
func (c *Catalog) StatusValue(id string) (domain.StatusValue, error) {
	item, ok := c.byID[KindStatus][id]
	if !ok {
		return "", fmt.Errorf("catalog: unknown status id %q", id)
	}
	return domain.StatusValue(item.Value), nil
}

// DefaultClassification returns the ids applied to a ticket created from a
// message of the given origin.
func (c *Catalog) DefaultClassification(origin domain.UpdateOrigin) (Classification, error) {
	var out Classification
	var err error
	if out.StatusID, err = c.idForValue(KindStatus, c.defaults.Status); err != nil {
		return out, err
	}
	if out.PriorityID, err = c.idForValue(KindPriority, c.defaults.Priority); err != nil {
		return out, err
	}
	if out.ImpactID, err = c.idForValue(KindImpact, c.defaults.Impact); err != nil {
		return out, err
	}
	if out.DepartmentID, err = c.idForValue(KindDepartment, c.defaults.Department); err != nil {
		return out, err
	}
	if out.TypeID, err = c.idForValue(KindType, c.defaults.Type); err != nil {
		return out, err
	}
	source := c.defaults.Sources[string(origin)]
	if source == "" {
		source = string(origin)
	}
	if out.SourceID, err = c.idForValue(KindSource, source); err != nil {
		return out, err
	}
	return out, nil
}

func (c *Catalog) idForValue(kind Kind, value string) (string, error) {
	item, ok := c.byValue[kind][value]
	if !ok {
		return "", fmt.Errorf("catalog: default %s %q not found", kind, value)
	}
	return item.ID, nil
}
