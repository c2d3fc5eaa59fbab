package selector

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/Sh00ty/cloud-nlb/failover-node/pkg/failover"
)

// Selector picks a failover destination out of the registered pool.
// Only healthy and degraded endpoints are viable, the source and any
// endpoint already serving as a target of an in-progress failover are
// excluded by the caller-provided set.
type Selector struct {
	mu       sync.Mutex
	rrCursor map[failover.EndpointID]int
}

func New() *Selector {
	return &Selector{
		rrCursor: make(map[failover.EndpointID]int),
	}
}

func (s *Selector) Select(
	policy failover.SelectionPolicy,
	source failover.ServiceEndpoint,
	pool []failover.ServiceEndpoint,
	excluded map[failover.EndpointID]struct{},
) (failover.ServiceEndpoint, error) {
	candidates := make([]failover.ServiceEndpoint, 0, len(pool))
	for _, ep := range pool {
		if ep.ID == source.ID {
			continue
		}
		if _, skip := excluded[ep.ID]; skip {
			continue
		}
		if ep.Status != failover.StatusHealthy && ep.Status != failover.StatusDegraded {
			continue
		}
		candidates = append(candidates, ep)
	}
	if len(candidates) == 0 {
		return failover.ServiceEndpoint{}, failover.NewError(
			failover.KindNoEligibleTarget, string(source.ID), "no eligible target for policy %s", policy)
	}

	switch policy {
	case failover.SelectLowestLoad:
		sort.Slice(candidates, func(i, j int) bool {
			return loadRatio(candidates[i]) < loadRatio(candidates[j])
		})
		return candidates[0], nil
	case failover.SelectClosestRegion:
		sameRegion := make([]failover.ServiceEndpoint, 0, len(candidates))
		for _, ep := range candidates {
			if ep.Region == source.Region {
				sameRegion = append(sameRegion, ep)
			}
		}
		if len(sameRegion) > 0 {
			candidates = sameRegion
		}
		sortByPriority(candidates)
		return candidates[0], nil
	case failover.SelectRoundRobin:
		sortByPriority(candidates)
		s.mu.Lock()
		cursor := s.rrCursor[source.ID]
		s.rrCursor[source.ID] = cursor + 1
		s.mu.Unlock()
		return candidates[cursor%len(candidates)], nil
	case failover.SelectRandom:
		return candidates[rand.Intn(len(candidates))], nil
	default: // highest_priority
		sortByPriority(candidates)
		return candidates[0], nil
	}
}

// lower numeric priority wins, ties broken by lower current load
func sortByPriority(eps []failover.ServiceEndpoint) {
	sort.Slice(eps, func(i, j int) bool {
		if eps[i].Priority != eps[j].Priority {
			return eps[i].Priority < eps[j].Priority
		}
		return eps[i].CurrentLoad < eps[j].CurrentLoad
	})
}

func loadRatio(ep failover.ServiceEndpoint) float64 {
	if ep.Capacity == 0 {
		return 1
	}
	return float64(ep.CurrentLoad) / float64(ep.Capacity)
}
