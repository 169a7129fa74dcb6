// Package topdown implements the Top-Down bottleneck hierarchy: a fixed
// tree of categories that apportions every pipeline issue slot, evaluated
// against counts from a single sampling run.
package topdown

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitriimaksimovdevelop/pmutop/internal/counter"
	"github.com/dmitriimaksimovdevelop/pmutop/internal/expr"
)

// Node is one bottleneck category. A node without a Formula is worth the
// sum of its children. A node with a Formula is worth exactly that formula;
// its children only break it down for display and need not add up to it.
type Node struct {
	Label       string
	Description string
	Formula     expr.Expr
	Children    []*Node
}

func sum(label, description string, children ...*Node) *Node {
	return &Node{Label: label, Description: description, Children: children}
}

func metric(label, description string, formula expr.Expr, children ...*Node) *Node {
	return &Node{Label: label, Description: description, Formula: formula, Children: children}
}

// Events returns the events referenced by n and all its descendants,
// depth-first and with repeats. Deduplicate before sampling.
func (n *Node) Events() []counter.Event {
	var events []counter.Event
	if n.Formula != nil {
		events = append(events, n.Formula.Events()...)
	}
	for _, child := range n.Children {
		events = append(events, child.Events()...)
	}
	return events
}

// CounterSet returns the deduplicated events needed to evaluate n.
func (n *Node) CounterSet() *counter.Set {
	return counter.NewSet(n.Events()...)
}

// Eval returns the fraction of issue slots attributed to n.
func (n *Node) Eval(c counter.Counts) float64 {
	if n.Formula != nil {
		return n.Formula.Eval(c)
	}
	var total float64
	for _, child := range n.Children {
		total += child.Eval(c)
	}
	return total
}

// Walk calls fn for n and every descendant in pre-order. The root has
// depth 0.
func (n *Node) Walk(fn func(node *Node, depth int)) {
	n.walk(fn, 0)
}

func (n *Node) walk(fn func(*Node, int), depth int) {
	fn(n, depth)
	for _, child := range n.Children {
		child.walk(fn, depth+1)
	}
}

// Find returns the first node in pre-order whose label matches label,
// ignoring case, or nil.
func (n *Node) Find(label string) *Node {
	var found *Node
	n.Walk(func(node *Node, _ int) {
		if found == nil && strings.EqualFold(node.Label, label) {
			found = node
		}
	})
	return found
}

// ErrEmptyNode is returned by Validate for a node with neither a formula
// nor children.
var ErrEmptyNode = errors.New("node has neither formula nor children")

// Validate checks every node of the tree rooted at n.
func (n *Node) Validate() error {
	var err error
	n.Walk(func(node *Node, _ int) {
		if err == nil && node.Formula == nil && len(node.Children) == 0 {
			err = fmt.Errorf("%q: %w", node.Label, ErrEmptyNode)
		}
	})
	return err
}

// Result is the evaluated value of one node.
type Result struct {
	Label string
	Depth int
	Value float64
}

// Evaluate returns the value of every node in pre-order.
func (n *Node) Evaluate(c counter.Counts) []Result {
	var results []Result
	n.Walk(func(node *Node, depth int) {
		results = append(results, Result{Label: node.Label, Depth: depth, Value: node.Eval(c)})
	})
	return results
}

// Render writes one line per node: the label indented two spaces per level
// and the value as a percentage of issue slots.
func (n *Node) Render(w io.Writer, c counter.Counts) error {
	return RenderResults(w, n.Evaluate(c))
}

// RenderResults writes already evaluated results in the Render format.
func RenderResults(w io.Writer, results []Result) error {
	for _, r := range results {
		label := strings.Repeat("  ", r.Depth) + r.Label
		if _, err := fmt.Fprintf(w, "%-30s %6.2f%%\n", label, 100*r.Value); err != nil {
			return err
		}
	}
	return nil
}
