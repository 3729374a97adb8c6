// Package planner turns logical plans into relations wired onto a runtime.
//
// A plan is a chain of nodes read from its root down to a source:
//
//	Source -> Filter? -> Project? -> (GroupBy | Output)?
//
// The Builder resolves the source in the catalog, creates the runtime
// handle and applies the relation operators bottom-up.
package planner

import (
	"fmt"
	"strings"

	"github.com/roach88/streamsql/internal/expr"
	"github.com/roach88/streamsql/internal/serde"
)

// Node is a logical plan node.
//
// This is a sealed interface - only types in this package implement it.
type Node interface {
	// Input returns the child node, nil for a source.
	Input() Node
	nodeName() string
}

// SourceNode reads a catalog source.
type SourceNode struct {
	Source string
}

func (*SourceNode) Input() Node      { return nil }
func (*SourceNode) nodeName() string { return "SOURCE" }

// FilterNode keeps the records for which Predicate is TRUE.
type FilterNode struct {
	Predicate expr.Expression
	Child     Node
}

func (n *FilterNode) Input() Node    { return n.Child }
func (*FilterNode) nodeName() string { return "FILTER" }

// SelectItem is one projected expression with an optional alias.
type SelectItem struct {
	Expression expr.Expression
	Alias      string
}

// ProjectNode evaluates Items against every record.
type ProjectNode struct {
	Items []SelectItem
	Child Node
}

func (n *ProjectNode) Input() Node    { return n.Child }
func (*ProjectNode) nodeName() string { return "PROJECT" }

// GroupByNode re-keys records by Expressions. Format encodes the
// repartitioned values; empty means JSON.
type GroupByNode struct {
	Expressions []expr.Expression
	Format      serde.Format
	Child       Node
}

func (n *GroupByNode) Input() Node    { return n.Child }
func (*GroupByNode) nodeName() string { return "GROUP BY" }

// OutputNode writes records to Topic. Format encodes values; empty means
// JSON.
type OutputNode struct {
	Topic  string
	Format serde.Format
	Child  Node
}

func (n *OutputNode) Input() Node    { return n.Child }
func (*OutputNode) nodeName() string { return "OUTPUT" }

// Plan is a named logical plan.
type Plan struct {
	Name string
	Root Node
}

// Nodes returns the chain from the source up to the root.
func (p *Plan) Nodes() []Node {
	var nodes []Node
	for n := p.Root; n != nil; n = n.Input() {
		nodes = append(nodes, n)
	}
	for i, j := 0, len(nodes)-1; i < j; i, j = i+1, j-1 {
		nodes[i], nodes[j] = nodes[j], nodes[i]
	}
	return nodes
}

// stage orders the node kinds a chain may contain.
func stage(n Node) int {
	switch n.(type) {
	case *SourceNode:
		return 0
	case *FilterNode:
		return 1
	case *ProjectNode:
		return 2
	case *GroupByNode, *OutputNode:
		return 3
	}
	return -1
}

// Validate checks the chain shape and each node's required fields.
func (p *Plan) Validate() error {
	if p == nil || p.Root == nil {
		return fmt.Errorf("plan: empty")
	}
	nodes := p.Nodes()
	if _, ok := nodes[0].(*SourceNode); !ok {
		return fmt.Errorf("plan %s: chain must start at a source, got %s", p.Name, nodes[0].nodeName())
	}

	last := -1
	for i, n := range nodes {
		s := stage(n)
		if s < 0 {
			return fmt.Errorf("plan %s: unknown node %T", p.Name, n)
		}
		if s <= last {
			return fmt.Errorf("plan %s: %s cannot follow %s", p.Name, n.nodeName(), nodes[i-1].nodeName())
		}
		last = s

		switch n := n.(type) {
		case *SourceNode:
			if n.Source == "" {
				return fmt.Errorf("plan %s: source name is required", p.Name)
			}
		case *FilterNode:
			if n.Predicate == nil {
				return fmt.Errorf("plan %s: filter predicate is required", p.Name)
			}
		case *ProjectNode:
			if len(n.Items) == 0 {
				return fmt.Errorf("plan %s: projection needs at least one expression", p.Name)
			}
			for j, item := range n.Items {
				if item.Expression == nil {
					return fmt.Errorf("plan %s: projection %d: expression is required", p.Name, j)
				}
			}
		case *GroupByNode:
			if len(n.Expressions) == 0 {
				return fmt.Errorf("plan %s: group by needs at least one expression", p.Name)
			}
		case *OutputNode:
			if n.Topic == "" {
				return fmt.Errorf("plan %s: output topic is required", p.Name)
			}
		}
	}
	return nil
}

// String renders the logical plan, root first, children indented.
//
//	OUTPUT OUT JSON
//	  PROJECT TEST2.COL0, (TEST2.COL3 * 3) AS X
//	    FILTER (TEST2.COL0 > 100)
//	      SOURCE TEST2
func (p *Plan) String() string {
	var b strings.Builder
	depth := 0
	for n := p.Root; n != nil; n = n.Input() {
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(n.nodeName())
		b.WriteByte(' ')
		b.WriteString(describe(n))
		b.WriteByte('\n')
		depth++
	}
	return b.String()
}

func describe(n Node) string {
	switch n := n.(type) {
	case *SourceNode:
		return n.Source
	case *FilterNode:
		return n.Predicate.String()
	case *ProjectNode:
		parts := make([]string, len(n.Items))
		for i, item := range n.Items {
			parts[i] = item.Expression.String()
			if item.Alias != "" {
				parts[i] += " AS " + item.Alias
			}
		}
		return strings.Join(parts, ", ")
	case *GroupByNode:
		parts := make([]string, len(n.Expressions))
		for i, e := range n.Expressions {
			parts[i] = e.String()
		}
		return strings.Join(parts, ", ")
	case *OutputNode:
		return n.Topic + " " + string(formatOrDefault(n.Format))
	}
	return ""
}

func formatOrDefault(f serde.Format) serde.Format {
	if f == "" {
		return serde.FormatJSON
	}
	return f
}
