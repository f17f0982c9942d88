// Package heartbeat publishes a service's liveness as a retained
// types.ServiceState on svc/<name>/state.
package heartbeat

import (
	"context"
	"time"

	"rsmu-go/bus"
	"rsmu-go/types"
	"rsmu-go/x/timex"
)

func Topic(name string) bus.Topic { return bus.T("svc", name, "state") }

type Service struct {
	Name     string
	Interval time.Duration
	// Status is sampled on every beat; nil reports "ok".
	Status func() string
}

func (s *Service) publish(conn *bus.Connection, level, status string) {
	conn.Publish(conn.NewMessage(Topic(s.Name), types.ServiceState{
		Level:  level,
		Status: status,
		TS:     timex.NowMs(),
	}, true))
}

func (s *Service) status() string {
	if s.Status == nil {
		return "ok"
	}
	return s.Status()
}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	tick := time.NewTicker(s.Interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			s.publish(conn, "stopped", s.status())
			return
		case <-tick.C:
			s.publish(conn, "running", s.status())
		}
	}
}

// Start publishes "starting" and then beats every Interval until ctx ends.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	if s.Interval <= 0 {
		s.Interval = 10 * time.Second
	}
	s.publish(conn, "starting", s.status())
	go s.serviceLoop(ctx, conn)
	return nil
}
