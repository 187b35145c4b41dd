// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"log/slog"
	"math"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/envira/ieq-pipeline/errors"
	"github.com/envira/ieq-pipeline/internal/log"
	"github.com/envira/ieq-pipeline/internal/wallclock"
	"github.com/envira/ieq-pipeline/mqtt/retry"
)

type (
	// Subscriber keeps a single MQTT v5 session subscribed to the telemetry
	// topic filter, reconnecting whenever it is lost, and hands received
	// publishes to the caller through Messages.
	Subscriber struct {
		conn ConnectionProvider

		clientID       string
		topicFilter    string
		qos            byte
		keepAlive      time.Duration
		connectTimeout time.Duration
		username       UsernameProvider
		password       PasswordProvider
		insecure       bool
		broker         string
		bufferSize     int
		retry          retry.Policy
		slog           *slog.Logger

		log      logger
		messages chan *Message
		state    atomic.Int32
		running  atomic.Bool
	}

	// Message is a publish received from the broker.
	Message struct {
		Topic      string
		Payload    []byte
		ReceivedAt time.Time
	}

	// session is one network connection's worth of client state.
	session struct {
		client    *paho.Client
		conn      net.Conn
		connected bool
		lost      chan error
		once      sync.Once
	}
)

// NewSubscriber creates a subscriber that dials the broker with the given
// connection provider. Nothing is dialed until Run.
func NewSubscriber(
	conn ConnectionProvider,
	opt ...Option,
) (*Subscriber, error) {
	if conn == nil {
		return nil, &errors.Error{
			Kind:         errors.ArgumentInvalid,
			Message:      "connection provider must not be nil",
			PropertyName: "conn",
		}
	}

	s := &Subscriber{
		conn:           conn,
		topicFilter:    DefaultTopicFilter,
		qos:            DefaultQoS,
		keepAlive:      DefaultKeepAlive,
		connectTimeout: DefaultConnectTimeout,
		bufferSize:     DefaultMessageBuffer,
	}
	for _, o := range opt {
		o(s)
	}

	if s.clientID == "" {
		s.clientID = RandomClientID()
	}
	if err := s.validate(); err != nil {
		return nil, err
	}

	s.log = logger{log.Wrap(s.slog).With(
		slog.String("module", "mqtt"),
		slog.String("client_id", s.clientID),
	)}
	if s.retry == nil {
		s.retry = &retry.ExponentialBackoff{Logger: s.slog}
	}
	s.messages = make(chan *Message, s.bufferSize)
	return s, nil
}

func (s *Subscriber) validate() error {
	invalid := func(name string, value any) error {
		return &errors.Error{
			Kind:          errors.ArgumentInvalid,
			Message:       "invalid subscriber option",
			PropertyName:  name,
			PropertyValue: value,
		}
	}

	switch {
	case s.topicFilter == "":
		return invalid("topic_filter", s.topicFilter)
	case s.qos > 2:
		return invalid("qos", s.qos)
	case s.keepAlive < 0 || s.keepAlive.Seconds() > math.MaxUint16:
		return invalid("keep_alive", s.keepAlive)
	case s.connectTimeout <= 0:
		return invalid("connect_timeout", s.connectTimeout)
	case s.bufferSize < 0:
		return invalid("message_buffer", s.bufferSize)
	}
	return nil
}

// Messages returns the channel of received publishes. It is never closed;
// consumers stop reading when their own context ends.
func (s *Subscriber) Messages() <-chan *Message {
	return s.messages
}

// State returns the current connection state.
func (s *Subscriber) State() State {
	return State(s.state.Load())
}

// Connected reports whether the session is up and subscribed.
func (s *Subscriber) Connected() bool {
	return s.State() == Connected
}

// Broker returns the configured broker address.
func (s *Subscriber) Broker() string {
	return s.broker
}

// TopicFilter returns the subscribed topic filter.
func (s *Subscriber) TopicFilter() string {
	return s.topicFilter
}

func (s *Subscriber) setState(state State) {
	s.state.Store(int32(state))
}

// Run connects, subscribes and keeps the session alive until the context
// ends. Connection failures of any kind are logged and retried; Run only
// returns once the context is done, after sending DISCONNECT.
func (s *Subscriber) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return &errors.Error{
			Kind:    errors.ArgumentInvalid,
			Message: "subscriber is already running",
		}
	}
	defer s.setState(Stopped)

	for {
		var sess *session
		err := s.retry.Start(ctx, "mqtt connect",
			func(attempt context.Context) (bool, error) {
				var err error
				sess, err = s.connect(ctx, attempt)
				return true, err
			},
		)
		if err != nil {
			if ctx.Err() != nil {
				s.setState(ShuttingDown)
				return nil
			}
			// The policy gave up, but the subscriber never does.
			s.setState(Disconnected)
			continue
		}

		s.setState(Connected)
		s.log.connected(ctx, s.broker, s.topicFilter)

		select {
		case <-ctx.Done():
			s.setState(ShuttingDown)
			sess.close(ctx, s.log)
			return nil

		case err := <-sess.lost:
			s.setState(Disconnected)
			s.log.lost(ctx, err)
			sess.close(ctx, s.log)
		}
	}
}

// connect makes one connection attempt bounded by the connect timeout. The
// run context outlives the attempt and governs publish delivery.
func (s *Subscriber) connect(
	ctx context.Context,
	attempt context.Context,
) (*session, error) {
	s.setState(Connecting)
	if s.insecure {
		s.log.insecure(ctx, s.broker)
	}

	attempt, cancel := wallclock.Instance.WithTimeout(
		attempt,
		s.connectTimeout,
	)
	defer cancel()

	conn, err := s.conn(attempt)
	if err != nil {
		s.setState(Disconnected)
		return nil, connectError("cannot reach broker", s.broker, err)
	}

	sess := &session{conn: conn, lost: make(chan error, 1)}
	sess.client = paho.NewClient(paho.ClientConfig{
		ClientID: s.clientID,
		Conn:     conn,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			func(pr paho.PublishReceived) (bool, error) {
				return s.receive(ctx, pr.Packet)
			},
		},
		OnClientError: sess.fail,
		OnServerDisconnect: func(d *paho.Disconnect) {
			sess.fail(&DisconnectError{ReasonCode: d.ReasonCode})
		},
	})

	if err := s.handshake(attempt, sess); err != nil {
		s.setState(Disconnected)
		sess.close(ctx, s.log)
		return nil, err
	}
	return sess, nil
}

func (s *Subscriber) handshake(ctx context.Context, sess *session) error {
	packet := &paho.Connect{
		ClientID:   s.clientID,
		CleanStart: true,
		KeepAlive:  uint16(s.keepAlive.Seconds()),
	}

	if s.username != nil {
		username, ok, err := s.username(ctx)
		if err != nil {
			return connectError("cannot get MQTT username", s.broker, err)
		}
		packet.Username, packet.UsernameFlag = username, ok
	}
	if s.password != nil {
		password, ok, err := s.password(ctx)
		if err != nil {
			return connectError("cannot get MQTT password", s.broker, err)
		}
		packet.Password, packet.PasswordFlag = password, ok
	}

	s.log.Packet(ctx, "connect", packet)
	connack, err := sess.client.Connect(ctx, packet)
	s.log.Packet(ctx, "connack", connack)
	switch {
	case connack != nil && IsFailure(connack.ReasonCode):
		return connackError(connack.ReasonCode, s.broker)
	case err != nil:
		return connectError("MQTT connect failed", s.broker, err)
	}
	sess.connected = true

	sub := &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{
			Topic: s.topicFilter,
			QoS:   s.qos,
		}},
	}
	s.log.Packet(ctx, "subscribe", sub)
	suback, err := sess.client.Subscribe(ctx, sub)
	s.log.Packet(ctx, "suback", suback)
	switch {
	case suback != nil && len(suback.Reasons) > 0 &&
		IsFailure(suback.Reasons[0]):
		return subackError(suback.Reasons[0], s.topicFilter)
	case err != nil:
		return connectError("MQTT subscribe failed", s.broker, err)
	}
	return nil
}

// receive runs on paho's read goroutine. It only enqueues, blocking while the
// buffer is full so the broker sees backpressure rather than lost messages.
func (s *Subscriber) receive(
	ctx context.Context,
	pub *paho.Publish,
) (bool, error) {
	if !IsTopicFilterMatch(s.topicFilter, pub.Topic) {
		s.log.dropped(ctx, pub.Topic)
		return true, nil
	}
	s.log.Packet(ctx, "publish", pub)

	msg := &Message{
		Topic:      pub.Topic,
		Payload:    pub.Payload,
		ReceivedAt: wallclock.Instance.Now(),
	}
	select {
	case s.messages <- msg:
	case <-ctx.Done():
	}
	return true, nil
}

func (sess *session) fail(err error) {
	select {
	case sess.lost <- err:
	default:
	}
}

// close ends the session once. A session that never completed CONNECT only
// has a network connection to close.
func (sess *session) close(ctx context.Context, l logger) {
	sess.once.Do(func() {
		if !sess.connected {
			_ = sess.conn.Close()
			return
		}

		packet := &paho.Disconnect{ReasonCode: 0x00}
		l.Packet(ctx, "disconnect", packet)
		if err := sess.client.Disconnect(packet); err != nil {
			l.Debug(ctx, "disconnect failed", slog.String("error", err.Error()))
		}
	})
}
