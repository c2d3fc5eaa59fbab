package metricstore

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Sh00ty/cloud-nlb/failover-node/pkg/failover"
)

// Sample is one observation for an endpoint. Samples are append-only:
// once recorded they are never mutated, only evicted by age or ring
// overflow.
type Sample struct {
	At      time.Time
	Success bool
	Latency time.Duration
	// Metrics carries resource and custom signals keyed by metric name.
	Metrics map[string]float64
}

type Aggregation string

const (
	AggAvg   Aggregation = "avg"
	AggSum   Aggregation = "sum"
	AggMax   Aggregation = "max"
	AggCount Aggregation = "count"
)

const defaultRingCapacity = 512

type ring struct {
	samples []Sample
	next    int
	full    bool
}

func (r *ring) append(s Sample) {
	if len(r.samples) < cap(r.samples) {
		r.samples = append(r.samples, s)
		return
	}
	r.samples[r.next] = s
	r.next = (r.next + 1) % cap(r.samples)
	r.full = true
}

// ordered returns samples oldest first.
func (r *ring) ordered() []Sample {
	if !r.full {
		return r.samples
	}
	out := make([]Sample, 0, len(r.samples))
	out = append(out, r.samples[r.next:]...)
	out = append(out, r.samples[:r.next]...)
	return out
}

type Store struct {
	mu       sync.RWMutex
	rings    map[failover.EndpointID]*ring
	events   []failover.FailoverEvent
	capacity int
}

func New(ringCapacity int) *Store {
	if ringCapacity <= 0 {
		ringCapacity = defaultRingCapacity
	}
	return &Store{
		rings:    make(map[failover.EndpointID]*ring),
		capacity: ringCapacity,
	}
}

func (s *Store) Record(id failover.EndpointID, sample Sample) {
	if sample.At.IsZero() {
		sample.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rg, ok := s.rings[id]
	if !ok {
		rg = &ring{samples: make([]Sample, 0, s.capacity)}
		s.rings[id] = rg
	}
	rg.append(sample)
}

// Window returns the metric values observed for id within the trailing
// duration, oldest first.
func (s *Store) Window(id failover.EndpointID, metric string, dur time.Duration) []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rg, ok := s.rings[id]
	if !ok {
		return nil
	}
	cutoff := time.Now().Add(-dur)
	var out []float64
	for _, sample := range rg.ordered() {
		if sample.At.Before(cutoff) {
			continue
		}
		if v, ok := valueOf(sample, metric); ok {
			out = append(out, v)
		}
	}
	return out
}

// Aggregate computes agg over the metric's trailing window and reports
// how many samples contributed. consecutive_failures ignores agg: its
// value is the failure streak counted back from the newest sample.
func (s *Store) Aggregate(id failover.EndpointID, metric string, dur time.Duration, agg Aggregation) (float64, int) {
	if metric == failover.MetricConsecutiveFailures {
		return s.failureStreak(id, dur)
	}
	values := s.Window(id, metric, dur)
	if len(values) == 0 {
		return 0, 0
	}
	switch agg {
	case AggCount:
		return float64(len(values)), len(values)
	case AggSum:
		return sum(values), len(values)
	case AggMax:
		maxVal := values[0]
		for _, v := range values[1:] {
			if v > maxVal {
				maxVal = v
			}
		}
		return maxVal, len(values)
	default:
		return sum(values) / float64(len(values)), len(values)
	}
}

func (s *Store) failureStreak(id failover.EndpointID, dur time.Duration) (float64, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rg, ok := s.rings[id]
	if !ok {
		return 0, 0
	}
	cutoff := time.Now().Add(-dur)
	ordered := rg.ordered()
	count := 0
	streak := 0
	for i := len(ordered) - 1; i >= 0; i-- {
		if ordered[i].At.Before(cutoff) {
			break
		}
		count++
		if ordered[i].Success {
			break
		}
		streak++
	}
	return float64(streak), count
}

// RecordEvent retains a resolved event. Only terminal copies land here,
// live events stay in the orchestrator's registry.
func (s *Store) RecordEvent(ev failover.FailoverEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

// Events returns retained events for an endpoint, empty id means all.
func (s *Store) Events(id failover.EndpointID) []failover.FailoverEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]failover.FailoverEvent, 0, len(s.events))
	for _, ev := range s.events {
		if id != "" && ev.Source != id {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Cleanup evicts samples and resolved events older than retention.
func (s *Store) Cleanup(retention time.Duration) (samples int, events int) {
	cutoff := time.Now().Add(-retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, rg := range s.rings {
		kept := make([]Sample, 0, s.capacity)
		for _, sample := range rg.ordered() {
			if sample.At.Before(cutoff) {
				samples++
				continue
			}
			kept = append(kept, sample)
		}
		if len(kept) == 0 {
			delete(s.rings, id)
			continue
		}
		s.rings[id] = &ring{samples: kept}
	}

	keptEvents := s.events[:0]
	for _, ev := range s.events {
		if ev.CreatedAt.Before(cutoff) {
			events++
			continue
		}
		keptEvents = append(keptEvents, ev)
	}
	s.events = keptEvents

	if samples > 0 || events > 0 {
		log.Debug().Msgf("metric cleanup: evicted %d samples, %d events", samples, events)
	}
	return samples, events
}

// valueOf extracts one metric from a sample. Explicitly reported values
// win over the ones derived from the probe outcome.
func valueOf(s Sample, metric string) (float64, bool) {
	if v, ok := s.Metrics[metric]; ok {
		return v, true
	}
	switch metric {
	case failover.MetricLatency:
		return float64(s.Latency.Milliseconds()), true
	case failover.MetricErrorRate:
		if s.Success {
			return 0, true
		}
		return 1, true
	}
	return 0, false
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}
