package telemetry

import "time"

// Ticker is the part of time.Ticker the queue uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock lets tests drive the flush timer.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

type systemClock struct{}

type systemTicker struct{ t *time.Ticker }

func (s systemTicker) C() <-chan time.Time { return s.t.C }
func (s systemTicker) Stop()               { s.t.Stop() }

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) NewTicker(d time.Duration) Ticker { return systemTicker{t: time.NewTicker(d)} }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}
