// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"log/slog"
	"time"

	"github.com/envira/ieq-pipeline/mqtt/retry"
)

// Option configures a Subscriber.
type Option func(*Subscriber)

// Defaults for a Subscriber.
const (
	DefaultTopicFilter    = "envira/+/+/telemetry"
	DefaultQoS            = 1
	DefaultKeepAlive      = 60 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultMessageBuffer  = 256
)

// WithClientID sets the MQTT client ID. Defaults to RandomClientID.
func WithClientID(id string) Option {
	return func(s *Subscriber) {
		s.clientID = id
	}
}

// WithTopicFilter sets the filter subscribed to on every connect.
func WithTopicFilter(filter string) Option {
	return func(s *Subscriber) {
		s.topicFilter = filter
	}
}

// WithQoS sets the subscription QoS.
func WithQoS(qos byte) Option {
	return func(s *Subscriber) {
		s.qos = qos
	}
}

// WithKeepAlive sets the keep-alive interval sent in CONNECT, rounded down to
// whole seconds.
func WithKeepAlive(keepAlive time.Duration) Option {
	return func(s *Subscriber) {
		s.keepAlive = keepAlive
	}
}

// WithConnectTimeout bounds each connect and subscribe attempt.
func WithConnectTimeout(timeout time.Duration) Option {
	return func(s *Subscriber) {
		s.connectTimeout = timeout
	}
}

// WithUsername sets the provider for the CONNECT username.
func WithUsername(provider UsernameProvider) Option {
	return func(s *Subscriber) {
		s.username = provider
	}
}

// WithPassword sets the provider for the CONNECT password.
func WithPassword(provider PasswordProvider) Option {
	return func(s *Subscriber) {
		s.password = provider
	}
}

// WithInsecureTLS records that the connection provider skips certificate
// verification. Every connect attempt is then logged at warn level.
func WithInsecureTLS(insecure bool) Option {
	return func(s *Subscriber) {
		s.insecure = insecure
	}
}

// WithBrokerURL sets the broker address reported by Broker and in logs.
func WithBrokerURL(url string) Option {
	return func(s *Subscriber) {
		s.broker = url
	}
}

// WithMessageBuffer sets the capacity of the Messages channel.
func WithMessageBuffer(size int) Option {
	return func(s *Subscriber) {
		s.bufferSize = size
	}
}

// WithRetry replaces the reconnect policy. The default retries forever with
// exponential backoff.
func WithRetry(policy retry.Policy) Option {
	return func(s *Subscriber) {
		s.retry = policy
	}
}

// WithLogger sets the logger for connection events and debug packet traces.
func WithLogger(l *slog.Logger) Option {
	return func(s *Subscriber) {
		s.slog = l
	}
}
