package jsonrpc

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
)

// NetListenerOption represents the options for a NetListener.
type NetListenerOption func(*NetListener)

// NetListener serves line-framed connections accepted from a TCP or Unix socket listener. Each
// accepted connection becomes a StreamTransport.
type NetListener struct {
	network  string
	address  string
	listener net.Listener
	logger   *slog.Logger

	streamOptions []StreamOption

	started      atomic.Bool
	done         chan struct{}
	closed       chan struct{}
	shutdownOnce sync.Once
}

// Listen opens a listener on network ("tcp", "tcp4", "tcp6" or "unix") and address. A stale Unix
// socket file at address is removed first and the new socket is restricted to its owner.
func Listen(network, address string, options ...NetListenerOption) (*NetListener, error) {
	l := &NetListener{
		network: network,
		address: address,
		logger:  slog.Default(),
		done:    make(chan struct{}),
		closed:  make(chan struct{}),
	}
	for _, opt := range options {
		opt(l)
	}

	switch network {
	case "tcp", "tcp4", "tcp6":
	case "unix":
		_ = os.Remove(address)
	default:
		return nil, fmt.Errorf("unsupported network %q", network)
	}

	ln, err := net.Listen(network, address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s %s: %w", network, address, err)
	}
	if network == "unix" {
		if err := os.Chmod(address, 0o600); err != nil {
			ln.Close()
			_ = os.Remove(address)
			return nil, fmt.Errorf("failed to set socket permissions: %w", err)
		}
	}
	l.listener = ln

	return l, nil
}

// WithNetListenerLogger sets the logger for the listener.
func WithNetListenerLogger(logger *slog.Logger) NetListenerOption {
	return func(l *NetListener) {
		l.logger = logger
	}
}

// WithNetListenerStreamOptions sets the options applied to every accepted connection.
func WithNetListenerStreamOptions(options ...StreamOption) NetListenerOption {
	return func(l *NetListener) {
		l.streamOptions = options
	}
}

// Addr returns the listener's network address.
func (l *NetListener) Addr() net.Addr {
	return l.listener.Addr()
}

// Connections implements ServerTransport.
func (l *NetListener) Connections() iter.Seq[Connection] {
	return func(yield func(Connection) bool) {
		l.started.Store(true)
		defer close(l.closed)

		for {
			conn, err := l.listener.Accept()
			if err != nil {
				select {
				case <-l.done:
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				l.logger.Error("failed to accept connection", slog.String("err", err.Error()))
				return
			}

			options := append([]StreamOption{WithStreamCloser(conn)}, l.streamOptions...)
			st := NewStreamTransport(conn, conn, options...)
			l.logger.Debug("accepted connection",
				slog.String("connectionID", st.ID()),
				slog.String("remote", conn.RemoteAddr().String()))

			if !yield(st) {
				_ = st.Close()
				return
			}
		}
	}
}

// Shutdown implements ServerTransport. It closes the listener, waits for the Connections loop to
// return and removes the Unix socket file.
func (l *NetListener) Shutdown(ctx context.Context) error {
	var err error
	l.shutdownOnce.Do(func() {
		close(l.done)
		if cErr := l.listener.Close(); cErr != nil && !errors.Is(cErr, net.ErrClosed) {
			err = fmt.Errorf("failed to close listener: %w", cErr)
		}
	})
	if err != nil {
		return err
	}

	if l.started.Load() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.closed:
		}
	}

	if l.network == "unix" {
		_ = os.Remove(l.address)
	}
	return nil
}
