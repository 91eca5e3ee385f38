// Tick source (C3).
//
// On real hardware the tick is a hardware timer interrupt firing at a
// fixed frequency. TickSource abstracts that interrupt so the
// scheduler's tick-handling logic can be exercised deterministically
// in tests, without a real clock.

package lazuli_internal

import "time"

// TickSource delivers a steady stream of ticks on its channel.
type TickSource interface {
	// Ticks returns the channel that receives a value on every tick.
	Ticks() <-chan time.Time
	// Stop releases any underlying resources (e.g. a time.Ticker).
	Stop()
}

// tickerSource is the production TickSource, backed by time.Ticker.
type tickerSource struct {
	ticker *time.Ticker
}

// NewTickerSource returns a TickSource that ticks every period.
func NewTickerSource(period time.Duration) TickSource {
	return &tickerSource{ticker: time.NewTicker(period)}
}

func (s *tickerSource) Ticks() <-chan time.Time {
	return s.ticker.C
}

func (s *tickerSource) Stop() {
	s.ticker.Stop()
}

// FakeTickSource is a manually driven TickSource for tests: each call
// to Tick() delivers exactly one tick to the scheduler and blocks
// until the scheduler has consumed it, giving tests a deterministic
// handle on "one tick of wall time".
type FakeTickSource struct {
	ch chan time.Time
}

func NewFakeTickSource() *FakeTickSource {
	return &FakeTickSource{ch: make(chan time.Time)}
}

func (s *FakeTickSource) Ticks() <-chan time.Time {
	return s.ch
}

func (s *FakeTickSource) Stop() {}

// Tick delivers a single tick and blocks until it has been received.
func (s *FakeTickSource) Tick() {
	s.ch <- time.Now()
}
