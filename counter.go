package turbofetch

import "sync"

// BusyIndicator receives the transitions of the in-flight counter. It is
// typically a progress spinner or a readiness flag owned by the caller.
type BusyIndicator interface {
	OnBusyStart()
	OnBusyIdle()
}

// BusyIndicatorFuncs adapts two plain functions to BusyIndicator. Nil fields
// are skipped.
type BusyIndicatorFuncs struct {
	Start func()
	Idle  func()
}

func (f BusyIndicatorFuncs) OnBusyStart() {
	if f.Start != nil {
		f.Start()
	}
}

func (f BusyIndicatorFuncs) OnBusyIdle() {
	if f.Idle != nil {
		f.Idle()
	}
}

type nopIndicator struct{}

func (nopIndicator) OnBusyStart() {}
func (nopIndicator) OnBusyIdle()  {}

// InFlightCounter counts outstanding calls. Transitions are signalled outside
// the counter lock, so an indicator may read Count or Busy; signalMu keeps
// the signals in transition order.
type InFlightCounter struct {
	signalMu  sync.Mutex
	mu        sync.Mutex
	count     int
	indicator BusyIndicator
}

// NewInFlightCounter returns a counter at zero. A nil indicator is allowed.
func NewInFlightCounter(indicator BusyIndicator) *InFlightCounter {
	if indicator == nil {
		indicator = nopIndicator{}
	}
	return &InFlightCounter{indicator: indicator}
}

// Increment raises the count and fires OnBusyStart on the 0 to 1 transition.
func (c *InFlightCounter) Increment() {
	c.signalMu.Lock()
	defer c.signalMu.Unlock()

	c.mu.Lock()
	c.count++
	started := c.count == 1
	c.mu.Unlock()

	if started {
		c.indicator.OnBusyStart()
	}
}

// Decrement lowers the count. When the result is zero or below, the count is
// clamped to zero and OnBusyIdle fires.
func (c *InFlightCounter) Decrement() {
	c.signalMu.Lock()
	defer c.signalMu.Unlock()

	c.mu.Lock()
	c.count--
	idle := c.count <= 0
	if idle {
		c.count = 0
	}
	c.mu.Unlock()

	if idle {
		c.indicator.OnBusyIdle()
	}
}

// Count returns the number of outstanding calls.
func (c *InFlightCounter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Busy reports whether any call is outstanding.
func (c *InFlightCounter) Busy() bool {
	return c.Count() > 0
}
