// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package main

import (
	"context"
	e "errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/envira/ieq-pipeline/api"
	"github.com/envira/ieq-pipeline/config"
	"github.com/envira/ieq-pipeline/hub"
	"github.com/envira/ieq-pipeline/internal/wallclock"
	"github.com/envira/ieq-pipeline/mqtt"
	"github.com/envira/ieq-pipeline/pipeline"
	"github.com/envira/ieq-pipeline/store"
)

type Application struct {
	config   *config.Config
	store    store.Store
	hub      *hub.Hub
	pipeline *pipeline.Pipeline
	server   *http.Server
	log      *slog.Logger
}

func NewApplication(
	ctx context.Context,
	cfg *config.Config,
	log *slog.Logger,
) (*Application, error) {
	st, err := openStore(ctx, cfg.Store, log)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to open %s store: %w",
			cfg.Store.Driver,
			err,
		)
	}

	sub, err := newSubscriber(cfg.MQTT, log)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to create MQTT subscriber: %w", err)
	}

	h := hub.New(
		hub.WithQueueSize(cfg.Hub.QueueSize),
		hub.WithWriteTimeout(time.Duration(cfg.Hub.WriteTimeout)),
		hub.WithLogger(log),
	)

	p := pipeline.New(pipeline.Config{
		Workers:      cfg.Pipeline.Workers,
		QueueSize:    cfg.Pipeline.QueueSize,
		StoreTimeout: time.Duration(cfg.Pipeline.StoreTimeout),
	}, sub, st, h, log)

	return &Application{
		config:   cfg,
		store:    st,
		hub:      h,
		pipeline: p,
		server: &http.Server{
			Addr:              cfg.HTTP.Address,
			Handler:           api.NewRouter(st, h, p, api.WithLogger(log)),
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}, nil
}

func openStore(
	ctx context.Context,
	cfg config.Store,
	log *slog.Logger,
) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return store.NewMemory(), nil
	case config.DriverDynamoDB:
		return store.NewDynamoDB(ctx, cfg.Table)
	default:
		return store.OpenSQLite(cfg.Path, store.SQLiteOptions{
			PoolSize: cfg.PoolSize,
			Logger:   log,
		})
	}
}

func newSubscriber(
	cfg config.MQTT,
	log *slog.Logger,
) (*mqtt.Subscriber, error) {
	conn := mqtt.TCPConnection(cfg.Host, cfg.Port)
	if cfg.TLS {
		opts := []mqtt.TLSOption{
			mqtt.WithInsecureSkipVerify(cfg.InsecureSkipVerify),
		}
		if cfg.CAFile != "" {
			opts = append(opts, mqtt.WithCA(cfg.CAFile))
		}
		switch {
		case cfg.KeyPasswordFile != "":
			opts = append(opts, mqtt.WithEncryptedX509(
				cfg.CertFile,
				cfg.KeyFile,
				cfg.KeyPasswordFile,
			))
		case cfg.CertFile != "":
			opts = append(opts, mqtt.WithX509(cfg.CertFile, cfg.KeyFile))
		}

		tlsConfig, err := mqtt.NewTLSConfig(opts...)
		if err != nil {
			return nil, err
		}
		conn = mqtt.TLSConnection(
			cfg.Host,
			cfg.Port,
			mqtt.ConstantTLSConfig(tlsConfig),
		)
	}

	opts := []mqtt.Option{
		mqtt.WithBrokerURL(cfg.Broker()),
		mqtt.WithTopicFilter(cfg.TopicFilter()),
		mqtt.WithQoS(byte(cfg.QoS)),
		mqtt.WithKeepAlive(time.Duration(cfg.KeepAlive)),
		mqtt.WithConnectTimeout(time.Duration(cfg.ConnectTimeout)),
		mqtt.WithMessageBuffer(cfg.MessageBuffer),
		mqtt.WithInsecureTLS(cfg.TLS && cfg.InsecureSkipVerify),
		mqtt.WithLogger(log),
	}
	if cfg.ClientID != "" {
		opts = append(opts, mqtt.WithClientID(cfg.ClientID))
	}
	if cfg.Username != "" {
		opts = append(opts, mqtt.WithUsername(
			mqtt.ConstantUsername(cfg.Username),
		))
	}
	switch {
	case cfg.PasswordFile != "":
		opts = append(opts, mqtt.WithPassword(
			mqtt.FilePassword(cfg.PasswordFile),
		))
	case cfg.Password != "":
		opts = append(opts, mqtt.WithPassword(
			mqtt.ConstantPassword([]byte(cfg.Password)),
		))
	}

	return mqtt.NewSubscriber(conn, opts...)
}

// Run serves HTTP and runs the pipeline until the context ends, then shuts the
// server down within the configured timeout.
func (a *Application) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		a.log.Info("http listening", slog.String("address", a.server.Addr))
		if err := a.server.ListenAndServe(); !e.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	pipeErr := make(chan error, 1)
	go func() { pipeErr <- a.pipeline.Run(ctx) }()

	var err error
	select {
	case err = <-serveErr:
		if err != nil {
			err = fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
	}
	cancel()

	sctx, stop := wallclock.Instance.WithTimeout(
		context.WithoutCancel(ctx),
		time.Duration(a.config.HTTP.ShutdownTimeout),
	)
	defer stop()
	if serr := a.server.Shutdown(sctx); serr != nil {
		a.log.Warn("http shutdown incomplete", slog.String("error", serr.Error()))
	}
	return e.Join(err, <-pipeErr)
}

// Close releases the hub and the store. Call it after Run returns.
func (a *Application) Close() {
	a.hub.Close()
	if err := a.store.Close(); err != nil {
		a.log.Warn("store close failed", slog.String("error", err.Error()))
	}
}
