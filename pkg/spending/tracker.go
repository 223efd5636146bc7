// Package spending implements the process-wide SpendingTracker (spec.md
// §4.4): a running USD total per workflow invocation, checked before every
// AI or tool call so a single soft cap bounds an entire invocation tree.
package spending

import (
	"math"
	"sync"
	"sync/atomic"
)

// Status is the result of Check: either ok, or exceeded with the limit and
// the total that tripped it.
type Status struct {
	OK    bool
	Limit float64
	Total float64
}

// Tracker is the narrow capability InvocationPipeline, StrategySelector, and
// WorkflowExecutor depend on. Wrapped in an interface so tests substitute a
// deterministic instance instead of reaching for a package-level global.
type Tracker interface {
	AddCost(invocationID string, usd float64)
	AddSDKCost(invocationID string, usd float64)
	Total(invocationID string) float64
	SDKTotal(invocationID string) float64
	Check(invocationID string) Status
	Reset(invocationID string)
}

type counters struct {
	aiCostBits  uint64 // math.Float64bits, updated via atomic.CompareAndSwap
	sdkCostBits uint64
}

func (c *counters) add(bits *uint64, usd float64) {
	for {
		old := atomic.LoadUint64(bits)
		next := math.Float64bits(math.Float64frombits(old) + usd)
		if atomic.CompareAndSwapUint64(bits, old, next) {
			return
		}
	}
}

// InMemoryTracker is the default Tracker: a sync.Map of invocation id ->
// *counters, each counter mutated via a float64-bit-pattern CAS loop so
// concurrent parallel-handoff branches never lose an update.
type InMemoryTracker struct {
	capUSD float64
	m      sync.Map // invocationID -> *counters
}

// New constructs an InMemoryTracker with the given soft cap, configured at
// process startup per spec.md §6 spending_cap_usd. A cap <= 0 disables
// enforcement (Check always reports OK).
func New(capUSD float64) *InMemoryTracker {
	return &InMemoryTracker{capUSD: capUSD}
}

func (t *InMemoryTracker) entry(invocationID string) *counters {
	v, _ := t.m.LoadOrStore(invocationID, &counters{})
	return v.(*counters)
}

// AddCost records spend attributable to an AIClient call.
func (t *InMemoryTracker) AddCost(invocationID string, usd float64) {
	c := t.entry(invocationID)
	c.add(&c.aiCostBits, usd)
}

// AddSDKCost records spend attributable to the direct-SDK strategy,
// reported separately per spec.md §4.4 "tracked separately for reporting".
func (t *InMemoryTracker) AddSDKCost(invocationID string, usd float64) {
	c := t.entry(invocationID)
	c.add(&c.sdkCostBits, usd)
}

// Total returns the combined AI + SDK spend recorded for an invocation.
func (t *InMemoryTracker) Total(invocationID string) float64 {
	v, ok := t.m.Load(invocationID)
	if !ok {
		return 0
	}
	c := v.(*counters)
	ai := math.Float64frombits(atomic.LoadUint64(&c.aiCostBits))
	sdk := math.Float64frombits(atomic.LoadUint64(&c.sdkCostBits))
	return ai + sdk
}

// SDKTotal returns only the direct-SDK-strategy spend, for reporting.
func (t *InMemoryTracker) SDKTotal(invocationID string) float64 {
	v, ok := t.m.Load(invocationID)
	if !ok {
		return 0
	}
	c := v.(*counters)
	return math.Float64frombits(atomic.LoadUint64(&c.sdkCostBits))
}

// Check reports whether the invocation may issue another AI/tool call. A
// single call must not be issued once the running total has reached the
// configured cap; enforcement happens at the call sites named in spec.md
// §4.4 (StrategySelector, pipeline single-call, WorkflowExecutor).
func (t *InMemoryTracker) Check(invocationID string) Status {
	total := t.Total(invocationID)
	if t.capUSD <= 0 {
		return Status{OK: true, Limit: t.capUSD, Total: total}
	}
	return Status{OK: total < t.capUSD, Limit: t.capUSD, Total: total}
}

// Reset clears the counters for one invocation. Exists only as a test hook
// per spec.md §4.4 "resettable only via a dedicated test hook" — production
// code should never need it since invocation ids are never reused.
func (t *InMemoryTracker) Reset(invocationID string) {
	t.m.Delete(invocationID)
}

var _ Tracker = (*InMemoryTracker)(nil)
