package turbofetch

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInFlightCounterTransitions(t *testing.T) {
	indicator := &recordingIndicator{}
	counter := NewInFlightCounter(indicator)

	counter.Increment()
	counter.Increment()
	assert.Equal(t, 2, counter.Count())
	assert.True(t, counter.Busy())

	counter.Decrement()
	assert.Equal(t, []string{"start"}, indicator.Events())

	counter.Decrement()
	assert.Zero(t, counter.Count())
	assert.False(t, counter.Busy())
	assert.Equal(t, []string{"start", "idle"}, indicator.Events())
}

func TestInFlightCounterClampsAtZero(t *testing.T) {
	indicator := &recordingIndicator{}
	counter := NewInFlightCounter(indicator)

	counter.Decrement()
	assert.Zero(t, counter.Count())
	assert.Equal(t, []string{"idle"}, indicator.Events())

	counter.Increment()
	assert.Equal(t, 1, counter.Count())
	assert.Equal(t, []string{"idle", "start"}, indicator.Events())
}

func TestInFlightCounterNilIndicator(t *testing.T) {
	counter := NewInFlightCounter(nil)
	assert.NotPanics(t, func() {
		counter.Increment()
		counter.Decrement()
	})
}

func TestBusyIndicatorFuncs(t *testing.T) {
	var started, idled int
	indicator := BusyIndicatorFuncs{
		Start: func() { started++ },
		Idle:  func() { idled++ },
	}
	counter := NewInFlightCounter(indicator)
	counter.Increment()
	counter.Decrement()

	assert.Equal(t, 1, started)
	assert.Equal(t, 1, idled)

	assert.NotPanics(t, func() {
		BusyIndicatorFuncs{}.OnBusyStart()
		BusyIndicatorFuncs{}.OnBusyIdle()
	})
}

func TestInFlightCounterConcurrent(t *testing.T) {
	var mu sync.Mutex
	busy := false
	violations := 0
	indicator := BusyIndicatorFuncs{
		Start: func() {
			mu.Lock()
			if busy {
				violations++
			}
			busy = true
			mu.Unlock()
		},
		Idle: func() {
			mu.Lock()
			if !busy {
				violations++
			}
			busy = false
			mu.Unlock()
		},
	}
	counter := NewInFlightCounter(indicator)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			counter.Increment()
			counter.Decrement()
		}()
	}
	wg.Wait()

	assert.Zero(t, counter.Count())
	assert.Zero(t, violations, "start and idle must alternate")
	assert.False(t, busy)
}

func TestInFlightCounterIndicatorReadsCount(t *testing.T) {
	var counter *InFlightCounter
	var seen []int
	counter = NewInFlightCounter(BusyIndicatorFuncs{
		Start: func() { seen = append(seen, counter.Count()) },
		Idle:  func() { seen = append(seen, counter.Count()) },
	})

	counter.Increment()
	counter.Decrement()

	assert.Equal(t, []int{1, 0}, seen)
}
