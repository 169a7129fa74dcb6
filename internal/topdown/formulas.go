package topdown

import (
	"github.com/dmitriimaksimovdevelop/pmutop/internal/counter"
	"github.com/dmitriimaksimovdevelop/pmutop/internal/expr"
)

// Formulas follow Yasin 2014, "A Top-Down Method for Performance Analysis
// and Counters Architecture", with the finer L1 and external memory
// breakdowns taken from pmu-tools' toplev.py. Event names and constants
// are for Ivy Bridge.

const (
	issueWidth = 4

	stlbHitCost       = 7  // cycles per second-level TLB hit
	storeForwardCost  = 13 // cycles per store-forward block
	splitLoadCost     = 13 // cycles per load spanning two cache lines
	addressAliasCost  = 7  // cycles per 4K aliasing conflict
	llcMissWeight     = 7  // relative cost of an LLC miss against an LLC hit
	bandwidthCmaskMin = 6  // outstanding demand reads that count as bandwidth bound
)

// Ivy Bridge event names.
const (
	evClocks              counter.Event = "CPU_CLK_UNHALTED.THREAD"
	evUopsNotDelivered    counter.Event = "IDQ_UOPS_NOT_DELIVERED.CORE"
	evUopsIssued          counter.Event = "UOPS_ISSUED.ANY"
	evRetireSlots         counter.Event = "UOPS_RETIRED.RETIRE_SLOTS"
	evRecoveryCycles      counter.Event = "INT_MISC.RECOVERY_CYCLES"
	evStallsMemAny        counter.Event = "CYCLE_ACTIVITY.STALLS_MEM_ANY"
	evStallsL1DMiss       counter.Event = "CYCLE_ACTIVITY.STALLS_L1D_MISS"
	evStallsL2Miss        counter.Event = "CYCLE_ACTIVITY.STALLS_L2_MISS"
	evCyclesNoExecute     counter.Event = "CYCLE_ACTIVITY.CYCLES_NO_EXECUTE"
	evStoreBufferStalls   counter.Event = "RESOURCE_STALLS.SB"
	evRSEmptyCycles       counter.Event = "RS_EVENTS.EMPTY_CYCLES"
	evUopsExecuted        string        = "UOPS_EXECUTED.THREAD"
	evSTLBHit             counter.Event = "DTLB_LOAD_MISSES.STLB_HIT"
	evWalkDuration        counter.Event = "DTLB_LOAD_MISSES.WALK_DURATION"
	evStoreForward        counter.Event = "LD_BLOCKS.STORE_FORWARD"
	evLockLoads           counter.Event = "MEM_UOPS_RETIRED.LOCK_LOADS"
	evAllStores           counter.Event = "MEM_UOPS_RETIRED.ALL_STORES"
	evCyclesWithDemandRFO counter.Event = "OFFCORE_REQUESTS_OUTSTANDING.CYCLES_WITH_DEMAND_RFO"
	evSplitLoads          counter.Event = "LD_BLOCKS.NO_SR"
	evAddressAlias        counter.Event = "LD_BLOCKS_PARTIAL.ADDRESS_ALIAS"
	evPendingMiss         counter.Event = "L1D_PEND_MISS.PENDING"
	evL1Miss              counter.Event = "MEM_LOAD_UOPS_RETIRED.L1_MISS"
	evHitLFB              counter.Event = "MEM_LOAD_UOPS_RETIRED.HIT_LFB"
	evFillBufferFull      string        = "L1D_PEND_MISS.FB_FULL"
	evLLCHit              counter.Event = "MEM_LOAD_UOPS_RETIRED.LLC_HIT"
	evLLCMiss             counter.Event = "MEM_LOAD_UOPS_RETIRED.LLC_MISS"
	evDemandDataRd        string        = "OFFCORE_REQUESTS_OUTSTANDING.DEMAND_DATA_RD"
	evCyclesWithDemandRd  counter.Event = "OFFCORE_REQUESTS_OUTSTANDING.CYCLES_WITH_DEMAND_DATA_RD"
)

type num = expr.Const

var (
	ev    = expr.E
	add   = expr.Add
	sub   = expr.Sub
	mul   = expr.Mul
	div   = expr.Div
	least = expr.Min
	cmask = counter.WithCounterMask
)

var (
	clocks = ev(evClocks)
	slots  = mul(num(issueWidth), clocks)

	frontendBound       = div(ev(evUopsNotDelivered), slots)
	fetchLatencyBound   = div(ev(cmask(string(evUopsNotDelivered), 4)), clocks)
	fetchBandwidthBound = sub(frontendBound, fetchLatencyBound)

	badSpeculation = div(
		add(sub(ev(evUopsIssued), ev(evRetireSlots)), mul(num(issueWidth), ev(evRecoveryCycles))),
		slots)

	retiring = div(ev(evRetireSlots), slots)

	memoryBound = div(add(ev(evStallsMemAny), ev(evStoreBufferStalls)), clocks)

	executionStalls = div(
		sub(
			add(
				sub(ev(evCyclesNoExecute), ev(evRSEmptyCycles)),
				ev(cmask(evUopsExecuted, 1))),
			ev(cmask(evUopsExecuted, 2))),
		clocks)
	coreBound = sub(executionStalls, memoryBound)

	l1Bound = div(sub(ev(evStallsMemAny), ev(evStallsL1DMiss)), clocks)

	l1DTLBMiss = div(add(mul(num(stlbHitCost), ev(evSTLBHit)), ev(evWalkDuration)), clocks)

	l1StoreForwardBlocked = div(mul(num(storeForwardCost), ev(evStoreForward)), clocks)

	lockStoreFraction = div(ev(evLockLoads), ev(evAllStores))
	demandRFOCycles   = least(clocks, ev(evCyclesWithDemandRFO))
	l1LockLatency     = div(mul(lockStoreFraction, demandRFOCycles), clocks)

	l1SplitLoads = div(mul(num(splitLoadCost), ev(evSplitLoads)), clocks)

	// An earlier load conflicting with a later store on the low 12 address bits.
	l1AddressAliasing = div(mul(num(addressAliasCost), ev(evAddressAlias)), clocks)

	// The L1D fill buffer limits further demand loads.
	loadMissRealLatency = div(ev(evPendingMiss), add(ev(evL1Miss), ev(evHitLFB)))
	l1FillBufferFull    = div(mul(loadMissRealLatency, ev(cmask(evFillBufferFull, 1))), clocks)

	l2Bound = div(sub(ev(evStallsL1DMiss), ev(evStallsL2Miss)), clocks)

	l3HitFraction  = div(ev(evLLCHit), add(ev(evLLCHit), mul(num(llcMissWeight), ev(evLLCMiss))))
	l3Bound        = div(mul(l3HitFraction, ev(evStallsL2Miss)), clocks)
	extMemoryBound = div(mul(sub(num(1), l3HitFraction), ev(evStallsL2Miss)), clocks)

	demandReadsAtBandwidth = ev(cmask(evDemandDataRd, bandwidthCmaskMin))
	extMemBandwidthBound   = div(demandReadsAtBandwidth, clocks)
	extMemLatencyBound     = div(sub(ev(evCyclesWithDemandRd), demandReadsAtBandwidth), clocks)
)
