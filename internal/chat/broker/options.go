package broker

import (
	"errors"

	"github.com/wtask/sharechat/internal/metrics"
)

type brokerOption func(b *Broker) error

func setup(b *Broker, options ...brokerOption) error {
	if b == nil {
		return nil
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		if err := option(b); err != nil {
			return err
		}
	}
	return nil
}

// WithRegistry - uses external registry instead of creating a new one.
func WithRegistry(r *Registry) brokerOption {
	return func(b *Broker) error {
		if r == nil {
			return errors.New("broker.WithRegistry: registry is nil")
		}
		b.registry = r
		return nil
	}
}

// WithMetrics - counts broadcasts and failed deliveries.
func WithMetrics(m *metrics.Metrics) brokerOption {
	return func(b *Broker) error {
		b.metrics = m
		return nil
	}
}
