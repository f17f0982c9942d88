package heartbeat

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsmu-go/bus"
	"rsmu-go/types"
)

func next(t *testing.T, sub *bus.Subscription) types.ServiceState {
	t.Helper()
	select {
	case m := <-sub.Channel():
		st, ok := m.Payload.(types.ServiceState)
		require.True(t, ok)
		return st
	case <-time.After(time.Second):
		t.Fatal("no heartbeat")
		return types.ServiceState{}
	}
}

func TestHeartbeatLifecycle(t *testing.T) {
	b := bus.NewBus(16)
	sub := b.NewConnection("ui").Subscribe(Topic("tdcsyncd"))

	var beats atomic.Int32
	s := &Service{
		Name:     "tdcsyncd",
		Interval: 2 * time.Millisecond,
		Status: func() string {
			beats.Add(1)
			return "locked"
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx, b.NewConnection("hb")))

	st := next(t, sub)
	assert.Equal(t, "starting", st.Level)
	assert.Equal(t, "locked", st.Status)

	st = next(t, sub)
	assert.Equal(t, "running", st.Level)
	assert.NotZero(t, st.TS)

	cancel()
	require.Eventually(t, func() bool {
		for {
			select {
			case m := <-sub.Channel():
				if m.Payload.(types.ServiceState).Level == "stopped" {
					return true
				}
			default:
				return false
			}
		}
	}, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, beats.Load(), int32(3))
}

func TestDefaultInterval(t *testing.T) {
	b := bus.NewBus(4)
	s := &Service{Name: "x"}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx, b.NewConnection("hb")))
	assert.Equal(t, 10*time.Second, s.Interval)
}
