package traffic

import (
	"context"
	"sync"

	"github.com/Sh00ty/cloud-nlb/failover-node/pkg/failover"
)

// Controller is the narrow boundary to whatever actually steers traffic
// (DNS, LB weights). The core never touches a proxy directly.
type Controller interface {
	SetTrafficSplit(ctx context.Context, source, target failover.EndpointID, percentage int) error
}

// Table is the in-memory Controller used by the orchestrator and in
// tests: it records the split per source and keeps the invariant that
// percentages across source and its targets always sum to 100.
type Table struct {
	mu sync.Mutex
	// splits[source][target] = percentage of the source's traffic served
	// by target; the source itself holds the remainder.
	splits map[failover.EndpointID]map[failover.EndpointID]int
}

func NewTable() *Table {
	return &Table{
		splits: make(map[failover.EndpointID]map[failover.EndpointID]int),
	}
}

func (t *Table) SetTrafficSplit(_ context.Context, source, target failover.EndpointID, percentage int) error {
	if percentage < 0 || percentage > 100 {
		return failover.NewError(failover.KindValidation, string(source),
			"traffic percentage %d out of [0,100]", percentage)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	targets, ok := t.splits[source]
	if !ok {
		targets = make(map[failover.EndpointID]int)
		t.splits[source] = targets
	}
	if percentage == 0 {
		delete(targets, target)
		if len(targets) == 0 {
			delete(t.splits, source)
		}
		return nil
	}
	targets[target] = percentage
	return nil
}

// Split returns the current distribution for a source including the
// source's own share.
func (t *Table) Split(source failover.EndpointID) map[failover.EndpointID]int {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[failover.EndpointID]int)
	shifted := 0
	for target, pct := range t.splits[source] {
		out[target] = pct
		shifted += pct
	}
	out[source] = 100 - shifted
	return out
}

// TargetShare returns the percentage currently pointed at target.
func (t *Table) TargetShare(source, target failover.EndpointID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.splits[source][target]
}
