// Package request reads YAML object query documents and resolves them
// against a schema registry into queryir requests.
//
// A document names a root type and a selection:
//
//	type: Brewery
//	select:
//	  - name
//	  - address: [city]
//	  - beers:
//	      select: [name]
//	      filter: {name: IPA}
//	      sort: [-name]
//	  - beer_stats:
//	      field: beers
//	      aggregate:
//	        - {name: count, fn: count}
//	filter:
//	  city: Amsterdam
//	sort: [name]
//	page: {page: 0, size: 10}
//
// Batch documents list keys instead of paging:
//
//	keys:
//	  - {id: 1}
//	  - {id: 2}
//	cardinality: one
package request

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Document is a parsed request document.
type Document struct {
	Type        string           `yaml:"type"`
	Select      []Item           `yaml:"select"`
	Filter      map[string]any   `yaml:"filter,omitempty"`
	Sort        []string         `yaml:"sort,omitempty"`
	Keys        []map[string]any `yaml:"keys,omitempty"`
	Cardinality string           `yaml:"cardinality,omitempty"`
	Page        *Page            `yaml:"page,omitempty"`
}

// Page selects one zero-based page of the root result.
type Page struct {
	Page int `yaml:"page"`
	Size int `yaml:"size"`
}

// Item is one entry of a select list: a bare field name, or a field name
// mapped to a nested selection.
type Item struct {
	Name string
	Sub  *Subselect
}

// Subselect is the nested part of a select item. Field names the schema
// field to read when it differs from the output name.
type Subselect struct {
	Field     string         `yaml:"field,omitempty"`
	Select    []Item         `yaml:"select,omitempty"`
	Filter    map[string]any `yaml:"filter,omitempty"`
	Sort      []string       `yaml:"sort,omitempty"`
	Aggregate []Aggregate    `yaml:"aggregate,omitempty"`
}

// Aggregate requests one aggregate value of a related type.
type Aggregate struct {
	Name      string `yaml:"name"`
	Fn        string `yaml:"fn"`
	Field     string `yaml:"field,omitempty"`
	Distinct  bool   `yaml:"distinct,omitempty"`
	Separator string `yaml:"separator,omitempty"`
}

// UnmarshalYAML accepts "name", "name: [items]" and "name: {select: ...}".
func (it *Item) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		it.Name = node.Value
		return nil
	case yaml.MappingNode:
		if len(node.Content) != 2 {
			return fmt.Errorf("line %d: select item must have exactly one key", node.Line)
		}
		it.Name = node.Content[0].Value
		value := node.Content[1]
		sub := &Subselect{}
		switch value.Kind {
		case yaml.SequenceNode:
			if err := value.Decode(&sub.Select); err != nil {
				return err
			}
		case yaml.MappingNode:
			if err := decodeStrict(value, sub); err != nil {
				return fmt.Errorf("line %d: select item %q: %w", value.Line, it.Name, err)
			}
		default:
			return fmt.Errorf("line %d: select item %q must map to a list or a mapping", value.Line, it.Name)
		}
		it.Sub = sub
		return nil
	default:
		return fmt.Errorf("line %d: select item must be a name or a mapping", node.Line)
	}
}

// MarshalYAML writes the item back in its shortest form.
func (it Item) MarshalYAML() (any, error) {
	if it.Sub == nil {
		return it.Name, nil
	}
	if it.Sub.Field == "" && it.Sub.Filter == nil && it.Sub.Sort == nil && it.Sub.Aggregate == nil {
		return map[string]any{it.Name: it.Sub.Select}, nil
	}
	return map[string]any{it.Name: it.Sub}, nil
}

// decodeStrict decodes node rejecting unknown fields. yaml.Node.Decode
// has no KnownFields switch, so the node is re-encoded first.
func decodeStrict(node *yaml.Node, out any) error {
	raw, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	return decoder.Decode(out)
}

// Parse decodes a request document with strict field validation.
func Parse(data []byte) (*Document, error) {
	var doc Document
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if doc.Type == "" {
		return nil, fmt.Errorf("invalid request: type is required")
	}
	if len(doc.Select) == 0 {
		return nil, fmt.Errorf("invalid request: select list is required and must be non-empty")
	}
	return &doc, nil
}

// ParseFile reads and parses a request document.
func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read request file: %w", err)
	}
	return Parse(data)
}
