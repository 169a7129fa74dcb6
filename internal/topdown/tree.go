package topdown

// Tree is the Ivy Bridge Top-Down hierarchy. It is never modified.
var Tree = sum("All slots", "Every issue slot of every unhalted cycle.",
	sum("Uop issued", "Slots in which a uop was issued.",
		metric("Retiring", "Slots that issued a uop which eventually retired. High is good; "+
			"reduce the uop count to go faster.", retiring),
		metric("Bad speculation", "Slots wasted on uops that never retire, plus slots blocked while "+
			"the machine recovers from a misprediction or machine clear.", badSpeculation)),
	sum("No uop issued", "Slots in which nothing was issued.",
		metric("Front end bound", "The front end delivered fewer uops than the back end could accept.",
			frontendBound,
			metric("Fetch latency bound", "Cycles in which the front end delivered no uops at all, "+
				"e.g. instruction cache or ITLB misses and branch resteers.", fetchLatencyBound),
			metric("Fetch bandwidth bound", "The front end delivered some but not enough uops, "+
				"typically decoder or uop cache throughput limits.", fetchBandwidthBound)),
		sum("Back end bound", "The back end could not accept uops for lack of resources.",
			metric("Core bound", "Execution stalls not caused by memory: divider pressure, "+
				"port contention or long dependency chains.", coreBound),
			metric("Memory bound", "Execution stalls on outstanding loads or a full store buffer.",
				memoryBound,
				metric("L1 bound", "Stalls while loads hit the L1 data cache but still could not "+
					"complete.", l1Bound,
					metric("DTLB load miss", "Cost of first-level DTLB misses: second-level TLB "+
						"hits and page walks.", l1DTLBMiss),
					metric("Load blocked by store forwarding", "Loads that could not take their "+
						"data from an earlier overlapping store.", l1StoreForwardBlocked),
					metric("Lock latency", "Cycles spent on locked memory operations.", l1LockLatency),
					metric("Split loads", "Loads that span two cache lines.", l1SplitLoads),
					metric("4K aliasing", "Loads falsely matched against an earlier store "+
						"with the same low 12 address bits.", l1AddressAliasing),
					metric("Fill buffer full", "L1 misses waiting for a free fill buffer.", l1FillBufferFull)),
				metric("L2 bound", "Stalls on loads that missed L1 and hit L2.", l2Bound),
				metric("L3 bound", "Stalls on loads that missed L2 and hit the shared L3.", l3Bound),
				metric("Ext mem bound", "Stalls on loads served from external memory.", extMemoryBound,
					metric("Bandwidth", "Cycles with many demand reads outstanding: the memory "+
						"bus is saturated.", extMemBandwidthBound),
					metric("Latency", "Cycles with some but few demand reads outstanding: waiting "+
						"on memory latency.", extMemLatencyBound))))))
