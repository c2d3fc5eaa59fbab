package notifyer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Sh00ty/cloud-nlb/failover-node/pkg/failover"
)

func TestDeliversNotifications(t *testing.T) {
	n := NewNotifier(4)
	defer n.Close()

	n.Notify(RuleFired, failover.FailoverEvent{ID: "ev-1", Source: "web-1"})

	select {
	case got := <-n.GetNotificationChan():
		require.Equal(t, RuleFired, got.Kind)
		require.Equal(t, "ev-1", got.Event.ID)
		require.False(t, got.At.IsZero())
	case <-time.After(time.Second):
		t.Fatal("notification never arrived")
	}
}

func TestFullBufferDropsOldestInsteadOfBlocking(t *testing.T) {
	n := NewNotifier(2)
	defer n.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			n.Notify(FailoverCompleted, failover.FailoverEvent{ID: "ev"})
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full buffer")
	}
	require.Len(t, n.GetNotificationChan(), 2)
}

func TestCloseIsIdempotentAndStopsDelivery(t *testing.T) {
	n := NewNotifier(1)
	n.Close()
	n.Close()

	// must not panic on the closed channel
	n.Notify(RecoveryStarted, failover.FailoverEvent{ID: "ev"})

	_, open := <-n.GetNotificationChan()
	require.False(t, open)
}
