package prober

import (
	"context"
	"sync"
	"time"
)

// MockProber replays a scripted sequence of outcomes, the last one
// repeats forever. Used in tests and wherever a real network probe is
// not wanted.
type MockProber struct {
	mu       sync.Mutex
	script   []Outcome
	pos      int
	Latency  time.Duration
	Probed   int
	lastAddr string
}

func NewMockProber(script ...Outcome) *MockProber {
	if len(script) == 0 {
		script = []Outcome{OutcomeSuccess}
	}
	return &MockProber{script: script}
}

func (m *MockProber) Probe(_ context.Context, address string, _ string) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos := m.pos
	if pos >= len(m.script) {
		pos = len(m.script) - 1
	}
	outcome := m.script[pos]
	m.pos++
	m.Probed++
	m.lastAddr = address
	return Result{
		Outcome:    outcome,
		Latency:    m.Latency,
		StatusCode: statusFor(outcome),
	}
}

// Append extends the script, switching the repeating tail.
func (m *MockProber) Append(outcomes ...Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, outcomes...)
}

func (m *MockProber) LastAddr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastAddr
}

func statusFor(o Outcome) int {
	if o == OutcomeSuccess {
		return 200
	}
	return 0
}
