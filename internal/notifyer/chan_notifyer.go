package notifyer

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Sh00ty/cloud-nlb/failover-node/pkg/failover"
)

type Kind string

const (
	RuleFired         Kind = "rule_fired"
	FailoverCompleted Kind = "failover_completed"
	FailoverFailed    Kind = "failover_failed"
	RecoveryStarted   Kind = "recovery_started"
	RecoveryCompleted Kind = "recovery_completed"
	RecoveryAborted   Kind = "recovery_aborted"
)

type Notification struct {
	Kind  Kind                   `json:"kind"`
	At    time.Time              `json:"at"`
	Event failover.FailoverEvent `json:"event"`
}

// ChanNotifyer decouples lifecycle transitions from delivery: Notify
// never blocks the executor, an overflowing buffer drops the oldest
// pending notification instead.
type ChanNotifyer struct {
	eventChan chan Notification
	closed    atomic.Bool
	close     chan struct{}
}

func NewNotifier(buf int) *ChanNotifyer {
	return &ChanNotifyer{
		eventChan: make(chan Notification, buf),
		close:     make(chan struct{}),
	}
}

func (n *ChanNotifyer) Notify(kind Kind, event failover.FailoverEvent) {
	if n.closed.Load() {
		return
	}
	notification := Notification{
		Kind:  kind,
		At:    time.Now(),
		Event: event,
	}
	select {
	case n.eventChan <- notification:
		return
	case <-n.close:
		return
	default:
	}
	// buffer is full: delivery lags behind, make room and try once more
	select {
	case dropped := <-n.eventChan:
		log.Warn().Msgf("notification buffer full, dropped %s for event %s", dropped.Kind, dropped.Event.ID)
	default:
	}
	select {
	case n.eventChan <- notification:
	case <-n.close:
	default:
	}
}

func (n *ChanNotifyer) GetNotificationChan() chan Notification {
	return n.eventChan
}

func (n *ChanNotifyer) Close() {
	if n.closed.Swap(true) {
		return
	}
	close(n.close)
	close(n.eventChan)
}
