package order

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// scheduleLocked arms the delivery timer for local order id, replacing any
// timer already armed for it.
func (s *HistoryStore) scheduleLocked(id string, after time.Duration) {
	if s.cfg.AutoDeliverDelay <= 0 || s.closed {
		return
	}
	s.cancelTimerLocked(id)
	s.timers[id] = s.clock.AfterFunc(after, func() {
		s.autoDeliver(id)
	})
}

func (s *HistoryStore) cancelTimerLocked(id string) {
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
}

// autoDeliver marks a local order delivered. It does nothing when the order
// is gone, already terminal, or a chef has picked it up remotely.
func (s *HistoryStore) autoDeliver(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.timers, id)
	if s.closed {
		return
	}
	i := indexLocal(s.local, id)
	if i < 0 || s.local[i].Status.Terminal() {
		return
	}
	if ri := indexOrder(s.remoteOrders, id); ri >= 0 && s.remoteOrders[ri].Status != StatusNew {
		return
	}

	ctx := context.Background()
	s.local[i].Status = CustomerDelivered
	s.persistLocked(ctx)
	s.metrics.orderAutoDelivered(ctx)
	s.lg.Info("Order auto-delivered", zap.String("order_id", id))
}
