// Package plandoc reads query plans written as YAML documents.
//
// A document names one source and the optional steps applied to it, in
// the order the planner runs them:
//
//	name: HIGH_VALUE
//	from: TEST2
//	where: {op: ">", args: [{col: COL0}, {lit: 100}]}
//	select:
//	  - expr: {col: COL0}
//	  - expr: {op: "*", args: [{col: COL3}, {lit: 3}]}
//	    as: TRIPLE
//	into:
//	  topic: OUT
//	  format: JSON
//
// group_by and into are mutually exclusive.
package plandoc

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/streamsql/internal/expr"
	"github.com/roach88/streamsql/internal/planner"
	"github.com/roach88/streamsql/internal/serde"
)

// Document is the YAML form of a plan.
type Document struct {
	Name    string       `yaml:"name"`
	From    string       `yaml:"from"`
	Where   *Expr        `yaml:"where,omitempty"`
	Select  []SelectItem `yaml:"select,omitempty"`
	GroupBy []Expr       `yaml:"group_by,omitempty"`
	// GroupFormat encodes repartitioned values for group_by.
	GroupFormat string `yaml:"group_format,omitempty"`
	Into        *Into  `yaml:"into,omitempty"`
}

// SelectItem is one projected expression.
type SelectItem struct {
	Expr Expr   `yaml:"expr"`
	As   string `yaml:"as,omitempty"`
}

// Into names the sink.
type Into struct {
	Topic  string `yaml:"topic"`
	Format string `yaml:"format,omitempty"`
}

// Load reads and converts a plan document.
func Load(path string) (*planner.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a plan document, rejecting unknown fields.
func Parse(data []byte) (*planner.Plan, error) {
	var doc Document
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	plan, err := doc.Plan()
	if err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}
	return plan, nil
}

// Plan converts the document into a validated logical plan.
func (d *Document) Plan() (*planner.Plan, error) {
	if d.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if d.From == "" {
		return nil, fmt.Errorf("from is required")
	}
	if len(d.GroupBy) > 0 && d.Into != nil {
		return nil, fmt.Errorf("group_by and into cannot both be set")
	}

	var node planner.Node = &planner.SourceNode{Source: strings.ToUpper(d.From)}

	if d.Where != nil {
		pred, err := d.Where.Expression()
		if err != nil {
			return nil, fmt.Errorf("where: %w", err)
		}
		node = &planner.FilterNode{Predicate: pred, Child: node}
	}

	if len(d.Select) > 0 {
		items := make([]planner.SelectItem, len(d.Select))
		for i, s := range d.Select {
			e, err := s.Expr.Expression()
			if err != nil {
				return nil, fmt.Errorf("select %d: %w", i, err)
			}
			items[i] = planner.SelectItem{Expression: e, Alias: strings.ToUpper(s.As)}
		}
		node = &planner.ProjectNode{Items: items, Child: node}
	}

	if len(d.GroupBy) > 0 {
		exprs := make([]expr.Expression, len(d.GroupBy))
		for i, g := range d.GroupBy {
			e, err := g.Expression()
			if err != nil {
				return nil, fmt.Errorf("group_by %d: %w", i, err)
			}
			exprs[i] = e
		}
		format, err := parseFormat(d.GroupFormat)
		if err != nil {
			return nil, fmt.Errorf("group_format: %w", err)
		}
		node = &planner.GroupByNode{Expressions: exprs, Format: format, Child: node}
	}

	if d.Into != nil {
		format, err := parseFormat(d.Into.Format)
		if err != nil {
			return nil, fmt.Errorf("into: %w", err)
		}
		node = &planner.OutputNode{Topic: d.Into.Topic, Format: format, Child: node}
	}

	plan := &planner.Plan{Name: strings.ToUpper(d.Name), Root: node}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

func parseFormat(s string) (serde.Format, error) {
	if s == "" {
		return "", nil
	}
	return serde.ParseFormat(s)
}
