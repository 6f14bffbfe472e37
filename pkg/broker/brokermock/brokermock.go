// Package brokermock provides a mockery-shaped test double for
// broker.Client. It is hand-written rather than go generate-produced (see
// tools.go at the repository root) but follows mockery's conventional
// output: embed mock.Mock, record the call, and return the configured
// values.
package brokermock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/gridwatt/hubctl/pkg/broker"
)

// Client is a mock.Mock-backed broker.Client.
type Client struct {
	mock.Mock
}

var _ broker.Client = (*Client)(nil)

func (m *Client) Connect(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *Client) Disconnect() {
	m.Called()
}

func (m *Client) Publish(topic string, payload []byte, qos broker.QoS, retain bool) error {
	args := m.Called(topic, payload, qos, retain)
	return args.Error(0)
}

func (m *Client) Subscribe(topic string, handler broker.Handler) error {
	args := m.Called(topic, handler)
	return args.Error(0)
}

func (m *Client) Unsubscribe(topic string) error {
	args := m.Called(topic)
	return args.Error(0)
}
