package chat

import (
	"github.com/wtask/sharechat/internal/chat/broker"
	"github.com/wtask/sharechat/internal/metrics"
)

// BrokerBuilder - helps to build custom broker.Broker with required dependencies
type BrokerBuilder func() (*broker.Broker, error)

// DefaultBroker - returns builder of broker.Broker with its own registry.
// The m may be nil.
func DefaultBroker(m *metrics.Metrics) BrokerBuilder {
	return func() (*broker.Broker, error) {
		return broker.New(
			broker.WithRegistry(broker.NewRegistry()),
			broker.WithMetrics(m),
		)
	}
}
