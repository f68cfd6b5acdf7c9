package pool

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tarantool/go-tarantool/v2"

	query "github.com/ice-blockchain/go-tarantool-query"
)

// Opener opens a handle to a single endpoint.
type Opener interface {
	Open(ctx context.Context, endpoint Endpoint) (query.Handle, error)
}

// OpenerFunc is an adapter to use ordinary functions as an Opener.
type OpenerFunc func(ctx context.Context, endpoint Endpoint) (query.Handle, error)

func (f OpenerFunc) Open(ctx context.Context, endpoint Endpoint) (query.Handle, error) {
	return f(ctx, endpoint)
}

// NetOpener dials endpoints over the network with the connector.
type NetOpener struct {
	// Opts is the base for every connection. Endpoint values override
	// Timeout, Reconnect and MaxReconnects when set.
	Opts tarantool.Opts
}

var _ Opener = NetOpener{}

// Open connects to endpoint retrying up to ConnectRetries extra times.
// Errors returned by the server, e.g. bad credentials, are not retried.
func (o NetOpener) Open(ctx context.Context, endpoint Endpoint) (query.Handle, error) {
	dialer := tarantool.NetDialer{
		Address:  endpoint.Address,
		User:     endpoint.User,
		Password: endpoint.Password,
	}
	opts := o.Opts
	if endpoint.Timeout != 0 {
		opts.Timeout = endpoint.Timeout
	}
	if endpoint.Reconnect != 0 {
		opts.Reconnect = endpoint.Reconnect
	}
	if endpoint.MaxReconnects != 0 {
		opts.MaxReconnects = endpoint.MaxReconnects
	}

	var conn *tarantool.Connection
	err := backoff.Retry(func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		var err error
		conn, err = tarantool.Connect(ctx, dialer, opts)
		if err != nil {
			var tntErr tarantool.Error
			if errors.As(err, &tntErr) {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}, connectBackoff(ctx, endpoint))
	if err != nil {
		return nil, err
	}
	return query.NewConnHandle(conn), nil
}

func connectBackoff(ctx context.Context, endpoint Endpoint) backoff.BackOff {
	delay := endpoint.ConnectRetryDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     delay,
		RandomizationFactor: 0.5,
		Multiplier:          2,
		MaxInterval:         10 * delay,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, endpoint.ConnectRetries), ctx)
}
