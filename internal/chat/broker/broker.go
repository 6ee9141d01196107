package broker

import (
	"fmt"
	"sync/atomic"

	"github.com/wtask/sharechat/internal/logger"
	"github.com/wtask/sharechat/internal/metrics"
)

// Broker - chat sessions keeper and message router.
type Broker struct {
	registry *Registry
	metrics  *metrics.Metrics
	stopped  atomic.Bool
}

// New - builds Broker with needed options.
func New(options ...brokerOption) (*Broker, error) {
	b := &Broker{}
	if err := setup(b, options...); err != nil {
		return nil, err
	}
	if b.registry == nil {
		b.registry = NewRegistry()
	}
	return b, nil
}

// Registry - returns underlying session registry.
func (b *Broker) Registry() *Registry {
	return b.registry
}

// Quit - puts broker under stop condition, new sessions will be rejected.
// Already registered sessions are expected to part by their own.
func (b *Broker) Quit() {
	b.stopped.Store(true)
}

// Join - registers named session.
func (b *Broker) Join(name, addr string, peer Peer) (ID, error) {
	if b.stopped.Load() {
		return "", ErrUnderStopCondition
	}
	if peer == nil {
		return "", fmt.Errorf("broker.Join: peer of %q is nil", name)
	}
	return b.registry.Register(name, addr, peer), nil
}

// Part - unregisters session, returns its entry only for the first call.
func (b *Broker) Part(id ID) (Entry, bool) {
	return b.registry.Unregister(id)
}

// Members - snapshot of registered sessions in join order.
func (b *Broker) Members() []Entry {
	return b.registry.Snapshot()
}

// SendMessage - queues message for single registered session.
func (b *Broker) SendMessage(id ID, message string) error {
	e, ok := b.registry.Get(id)
	if !ok {
		return ErrUnknownSession
	}
	return e.Peer.Push(message)
}

// Broadcast - queues message for every registered session except excluded one
// and returns number of successful deliveries.
// Failed delivery never interrupts the fan-out: the broken session will part by its own.
func (b *Broker) Broadcast(message string, exclude ID) int {
	delivered, failed := 0, 0
	for _, e := range b.registry.Snapshot() {
		if e.ID == exclude {
			continue
		}
		if err := e.Peer.Push(message); err != nil {
			failed++
			logger.Warn("broadcast delivery failed",
				logger.KeySessionID, string(e.ID),
				logger.KeyUsername, e.Name,
				logger.KeyError, err,
			)
			continue
		}
		delivered++
	}
	b.metrics.Broadcast(failed)
	return delivered
}
