package sync

import (
	"sync"
	"sync/atomic"
)

// WaitGroup is a sync.WaitGroup that also reports how much work is outstanding
type WaitGroup struct {
	sync.WaitGroup

	current atomic.Int32
}

func (wg *WaitGroup) Add(delta int) {
	wg.current.Add(int32(delta))
	wg.WaitGroup.Add(delta)
}

func (wg *WaitGroup) Done() {
	wg.current.Add(-1)
	wg.WaitGroup.Done()
}

// Track marks one unit of work as started and returns the function that marks
// it as done, so callers can simply defer wg.Track()()
func (wg *WaitGroup) Track() func() {
	wg.Add(1)
	return wg.Done
}

// Current returns the number of units added and not yet done
func (wg *WaitGroup) Current() int {
	return int(wg.current.Load())
}
