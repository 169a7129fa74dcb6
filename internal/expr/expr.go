// Package expr implements immutable arithmetic formulas over hardware
// event counts.
//
// A formula is built from leaves (E), numeric constants (Const) and the
// binary combinators Add, Sub, Mul, Div and Min:
//
//	clks := expr.E("CPU_CLK_UNHALTED.THREAD")
//	frontend := expr.Div(expr.E("IDQ_UOPS_NOT_DELIVERED.CORE"), expr.Mul(expr.Const(4), clks))
//
// Evaluation always uses float64 division.
package expr

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dmitriimaksimovdevelop/pmutop/internal/counter"
)

// Expr is a node of a formula tree. The implementations are Leaf, Const
// and *Op; the interface is sealed.
type Expr interface {
	// Eval computes the formula against c. It panics with a
	// *counter.MissingEventError if a referenced event is not in c.
	Eval(c counter.Counts) float64

	// Events lists every referenced event depth-first, with repeats.
	Events() []counter.Event

	String() string

	sealed()
}

// Leaf reads one event count.
type Leaf struct {
	Event counter.Event
}

// E returns a leaf for the named event.
func E(event counter.Event) Leaf { return Leaf{Event: event} }

func (l Leaf) Eval(c counter.Counts) float64 { return float64(c.Get(l.Event)) }
func (l Leaf) Events() []counter.Event { return []counter.Event{l.Event} }
func (l Leaf) String() string { return string(l.Event) }
func (Leaf) sealed() {}

// Const is a numeric literal.
type Const float64

func (k Const) Eval(counter.Counts) float64 { return float64(k) }
func (Const) Events() []counter.Event { return nil }
func (k Const) String() string { return strconv.FormatFloat(float64(k), 'g', -1, 64) }
func (Const) sealed() {}

// Kind selects the operator applied by an Op.
type Kind int

const (
	KindAdd Kind = iota
	KindSub
	KindMul
	KindDiv
	KindMin
)

var kindSymbols = map[Kind]string{
	KindAdd: "+",
	KindSub: "-",
	KindMul: "*",
	KindDiv: "/",
	KindMin: "min",
}

func (k Kind) String() string {
	if s, ok := kindSymbols[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Op applies Kind to its operands left to right.
type Op struct {
	Kind Kind
	Args []Expr
}

func newOp(kind Kind, args ...Expr) *Op {
	if len(args) == 0 {
		panic("expr: operator needs at least one operand")
	}
	return &Op{Kind: kind, Args: args}
}

// Add returns a + b.
func Add(a, b Expr) *Op { return newOp(KindAdd, a, b) }

// Sub returns a - b.
func Sub(a, b Expr) *Op { return newOp(KindSub, a, b) }

// Mul returns a * b.
func Mul(a, b Expr) *Op { return newOp(KindMul, a, b) }

// Div returns a / b.
func Div(a, b Expr) *Op { return newOp(KindDiv, a, b) }

// Min returns the smaller of a and b.
func Min(a, b Expr) *Op { return newOp(KindMin, a, b) }

func (o *Op) Eval(c counter.Counts) float64 {
	acc := o.Args[0].Eval(c)
	for _, arg := range o.Args[1:] {
		v := arg.Eval(c)
		switch o.Kind {
		case KindAdd:
			acc += v
		case KindSub:
			acc -= v
		case KindMul:
			acc *= v
		case KindDiv:
			acc /= v
		case KindMin:
			acc = math.Min(acc, v)
		default:
			panic(fmt.Sprintf("expr: unknown operator %v", o.Kind))
		}
	}
	return acc
}

func (o *Op) Events() []counter.Event {
	var events []counter.Event
	for _, arg := range o.Args {
		events = append(events, arg.Events()...)
	}
	return events
}

func (o *Op) String() string {
	parts := make([]string, len(o.Args))
	for i, arg := range o.Args {
		parts[i] = arg.String()
	}
	if o.Kind == KindMin {
		return "min(" + strings.Join(parts, ", ") + ")"
	}
	return "(" + strings.Join(parts, " "+o.Kind.String()+" ") + ")"
}

func (*Op) sealed() {}

// Evaluate is Eval for contexts that may not cover the formula, such as
// counts supplied by a user. A missing event is returned as an error.
func Evaluate(e Expr, c counter.Counts) (v float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			missing, ok := r.(*counter.MissingEventError)
			if !ok {
				panic(r)
			}
			err = missing
		}
	}()
	return e.Eval(c), nil
}
