// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"

	"github.com/eclipse/paho.golang/packets"
)

type (
	// ConnectionProvider opens a fresh network connection to the broker for
	// each connect attempt. The returned net.Conn must be safe for concurrent
	// writes.
	ConnectionProvider func(context.Context) (net.Conn, error)

	// TLSConfigProvider returns the TLS configuration for the next connect
	// attempt.
	TLSConfigProvider func(context.Context) (*tls.Config, error)
)

// TCPConnection dials the broker over plain TCP.
func TCPConnection(host string, port int) ConnectionProvider {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	return func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, &ConnectionError{
				message: "error opening TCP connection to " + addr,
				wrapped: err,
			}
		}
		return packets.NewThreadSafeConn(conn), nil
	}
}

// ConstantTLSConfig always returns the same configuration.
func ConstantTLSConfig(config *tls.Config) TLSConfigProvider {
	return func(context.Context) (*tls.Config, error) {
		return config, nil
	}
}

// TLSConnection dials the broker over TLS. A nil provider uses a default,
// fully verified configuration.
func TLSConnection(
	host string,
	port int,
	provider TLSConfigProvider,
) ConnectionProvider {
	if provider == nil {
		provider = ConstantTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	return func(ctx context.Context) (net.Conn, error) {
		config, err := provider(ctx)
		if err != nil {
			return nil, &ConnectionError{
				message: "error getting TLS configuration",
				wrapped: err,
			}
		}

		d := tls.Dialer{Config: config}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, &ConnectionError{
				message: "error opening TLS connection to " + addr,
				wrapped: err,
			}
		}
		return packets.NewThreadSafeConn(conn), nil
	}
}
