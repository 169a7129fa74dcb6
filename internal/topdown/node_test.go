package topdown

import (
	"bytes"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitriimaksimovdevelop/pmutop/internal/counter"
	"github.com/dmitriimaksimovdevelop/pmutop/internal/expr"
)

// countsFor returns a context covering every event of the tree, each set
// to base, with overrides applied on top.
func countsFor(base uint64, overrides map[counter.Event]uint64) counter.Counts {
	m := make(map[counter.Event]uint64)
	for _, e := range Tree.Events() {
		m[e] = base
	}
	for e, v := range overrides {
		m[e] = v
	}
	return counter.CountsFromMap(m)
}

func randomCounts(rng *rand.Rand) counter.Counts {
	m := make(map[counter.Event]uint64)
	for _, e := range Tree.Events() {
		m[e] = uint64(rng.Int63n(1_000_000)) + 1
	}
	return counter.CountsFromMap(m)
}

func TestTreeIsValid(t *testing.T) {
	require.NoError(t, Tree.Validate())
}

func TestValidateRejectsEmptyNode(t *testing.T) {
	bad := sum("root", "", metric("ok", "", expr.Const(1)), sum("empty", ""))
	err := bad.Validate()
	require.ErrorIs(t, err, ErrEmptyNode)
	require.Contains(t, err.Error(), `"empty"`)
}

func TestTreeCounterSet(t *testing.T) {
	events := Tree.Events()
	require.Equal(t, counter.Event("UOPS_RETIRED.RETIRE_SLOTS"), events[0])

	set := Tree.CounterSet()
	require.Equal(t, 30, set.Len())
	require.Less(t, set.Len(), len(events))

	// Qualified variants of one base event are separate counters.
	for _, e := range []counter.Event{
		"IDQ_UOPS_NOT_DELIVERED.CORE",
		"IDQ_UOPS_NOT_DELIVERED.CORE:cmask=4",
		"UOPS_EXECUTED.THREAD:cmask=1",
		"UOPS_EXECUTED.THREAD:cmask=2",
		"L1D_PEND_MISS.FB_FULL:cmask=1",
		"OFFCORE_REQUESTS_OUTSTANDING.DEMAND_DATA_RD:cmask=6",
	} {
		_, ok := set.Index(e)
		assert.True(t, ok, "missing %s", e)
	}
}

func TestFrontendBoundScenario(t *testing.T) {
	c := countsFor(0, map[counter.Event]uint64{
		"CPU_CLK_UNHALTED.THREAD":     1000,
		"IDQ_UOPS_NOT_DELIVERED.CORE": 400,
	})

	node := Tree.Find("front end bound")
	require.NotNil(t, node)
	require.InDelta(t, 0.10, node.Eval(c), 1e-12)

	var buf bytes.Buffer
	require.NoError(t, Tree.Render(&buf, c))

	var line string
	for _, l := range strings.Split(buf.String(), "\n") {
		if strings.Contains(l, "Front end bound") {
			line = l
		}
	}
	require.Equal(t, "    Front end bound             10.00%", line)
}

func TestSumNodesEqualChildren(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		c := randomCounts(rng)
		Tree.Walk(func(n *Node, _ int) {
			if n.Formula != nil {
				return
			}
			var total float64
			for _, child := range n.Children {
				total += child.Eval(c)
			}
			require.InDelta(t, total, n.Eval(c), 1e-9, n.Label)
		})
	}
}

func TestEvalIsPure(t *testing.T) {
	c := randomCounts(rand.New(rand.NewSource(7)))
	first := Tree.Evaluate(c)
	second := Tree.Evaluate(c)
	require.Equal(t, first, second)
}

func TestEvaluateOrderAndDepth(t *testing.T) {
	results := Tree.Evaluate(countsFor(1, nil))

	var labels []string
	var depths []int
	for _, r := range results {
		labels = append(labels, r.Label)
		depths = append(depths, r.Depth)
	}

	require.Equal(t, []string{
		"All slots",
		"Uop issued", "Retiring", "Bad speculation",
		"No uop issued",
		"Front end bound", "Fetch latency bound", "Fetch bandwidth bound",
		"Back end bound", "Core bound", "Memory bound",
		"L1 bound", "DTLB load miss", "Load blocked by store forwarding", "Lock latency",
		"Split loads", "4K aliasing", "Fill buffer full",
		"L2 bound", "L3 bound", "Ext mem bound", "Bandwidth", "Latency",
	}, labels)
	require.Equal(t, []int{0, 1, 2, 2, 1, 2, 3, 3, 2, 3, 3, 4, 5, 5, 5, 5, 5, 5, 4, 4, 4, 5, 5}, depths)
}

func TestFormulaValues(t *testing.T) {
	c := countsFor(0, map[counter.Event]uint64{
		"CPU_CLK_UNHALTED.THREAD":             1000,
		"UOPS_RETIRED.RETIRE_SLOTS":           2000,
		"UOPS_ISSUED.ANY":                     2400,
		"INT_MISC.RECOVERY_CYCLES":            50,
		"IDQ_UOPS_NOT_DELIVERED.CORE":         400,
		"IDQ_UOPS_NOT_DELIVERED.CORE:cmask=4": 60,
		"CYCLE_ACTIVITY.STALLS_MEM_ANY":       300,
		"RESOURCE_STALLS.SB":                  20,
		"CYCLE_ACTIVITY.STALLS_L1D_MISS":      200,
		"CYCLE_ACTIVITY.STALLS_L2_MISS":       100,
		"DTLB_LOAD_MISSES.STLB_HIT":           10,
		"DTLB_LOAD_MISSES.WALK_DURATION":      30,
		"MEM_LOAD_UOPS_RETIRED.LLC_HIT":       70,
		"MEM_LOAD_UOPS_RETIRED.LLC_MISS":      10,
		"MEM_UOPS_RETIRED.LOCK_LOADS":         5,
		"MEM_UOPS_RETIRED.ALL_STORES":         50,
		"LD_BLOCKS.STORE_FORWARD":             2,
		"LD_BLOCKS_PARTIAL.ADDRESS_ALIAS":     3,

		"OFFCORE_REQUESTS_OUTSTANDING.CYCLES_WITH_DEMAND_RFO":     2000,
		"OFFCORE_REQUESTS_OUTSTANDING.CYCLES_WITH_DEMAND_DATA_RD": 90,
		"OFFCORE_REQUESTS_OUTSTANDING.DEMAND_DATA_RD:cmask=6":     40,
	})

	tests := []struct {
		label string
		want  float64
	}{
		{"Retiring", 2000.0 / 4000},
		{"Bad speculation", (2400.0 - 2000 + 4*50) / 4000},
		{"Uop issued", 0.5 + 0.15},
		{"Fetch latency bound", 0.06},
		{"Fetch bandwidth bound", 0.10 - 0.06},
		{"Memory bound", 0.32},
		{"L1 bound", 0.1},
		{"DTLB load miss", (7*10.0 + 30) / 1000},
		{"Load blocked by store forwarding", 13 * 2.0 / 1000},
		{"Lock latency", (5.0 / 50) * 1000 / 1000},
		{"4K aliasing", 7 * 3.0 / 1000},
		{"L2 bound", 0.1},
		{"L3 bound", 0.5 * 100 / 1000},
		{"Ext mem bound", 0.5 * 100 / 1000},
		{"Bandwidth", 0.04},
		{"Latency", 0.05},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			node := Tree.Find(tt.label)
			require.NotNil(t, node)
			assert.InDelta(t, tt.want, node.Eval(c), 1e-12)
		})
	}
}

func TestExecutionAndFillBufferFormulas(t *testing.T) {
	c := countsFor(1, map[counter.Event]uint64{
		"CPU_CLK_UNHALTED.THREAD":          1000,
		"CYCLE_ACTIVITY.CYCLES_NO_EXECUTE": 500,
		"RS_EVENTS.EMPTY_CYCLES":           100,
		"UOPS_EXECUTED.THREAD:cmask=1":     300,
		"UOPS_EXECUTED.THREAD:cmask=2":     200,
		"CYCLE_ACTIVITY.STALLS_MEM_ANY":    150,
		"RESOURCE_STALLS.SB":               50,
		"LD_BLOCKS.NO_SR":                  4,
		"L1D_PEND_MISS.PENDING":            600,
		"MEM_LOAD_UOPS_RETIRED.L1_MISS":    20,
		"MEM_LOAD_UOPS_RETIRED.HIT_LFB":    10,
		"L1D_PEND_MISS.FB_FULL:cmask=1":    5,
	})

	tests := []struct {
		label string
		want  float64
	}{
		// (500 - 100 + 300 - 200) / 1000 execution stalls, less memory bound.
		{"Core bound", 0.5 - (150.0+50)/1000},
		{"Split loads", 13 * 4.0 / 1000},
		// 600 / (20 + 10) cycles per miss, times 5 fill-buffer-full cycles.
		{"Fill buffer full", 20.0 * 5 / 1000},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			node := Tree.Find(tt.label)
			require.NotNil(t, node)
			assert.InDelta(t, tt.want, node.Eval(c), 1e-12)
		})
	}
}

func TestChildrenNeedNotSumToFormulaParent(t *testing.T) {
	c := randomCounts(rand.New(rand.NewSource(3)))
	l1 := Tree.Find("L1 bound")
	require.NotNil(t, l1)

	var children float64
	for _, child := range l1.Children {
		children += child.Eval(c)
	}
	// The parent reports its own formula, not the sum of its breakdown.
	require.Equal(t, l1.Formula.Eval(c), l1.Eval(c))
	require.NotEqual(t, children, l1.Eval(c))
}

func TestRenderFormat(t *testing.T) {
	c := counter.CountsFromMap(map[counter.Event]uint64{"A": 1, "B": 3, "T": 4})
	tree := sum("Total", "",
		metric("A share", "", expr.Div(expr.E("A"), expr.E("T"))),
		metric("B share", "", expr.Div(expr.E("B"), expr.E("T")),
			metric("Half of B", "", expr.Div(expr.Mul(expr.Const(0.5), expr.E("B")), expr.E("T")))))

	var buf bytes.Buffer
	require.NoError(t, tree.Render(&buf, c))
	require.Equal(t,
		"Total                          100.00%\n"+
			"  A share                       25.00%\n"+
			"  B share                       75.00%\n"+
			"    Half of B                   37.50%\n",
		buf.String())
}

func TestFindMissing(t *testing.T) {
	require.Nil(t, Tree.Find("no such node"))
}
