package jsonrpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ServerOption represents the options for the server.
type ServerOption func(*Server)

// Server runs a Dispatcher for every connection a ServerTransport yields. Connections are served
// concurrently, while each connection handles its own messages one at a time. All dispatchers
// share the same read-only Registry.
type Server struct {
	registry  *Registry
	transport ServerTransport

	invocationTimeout time.Duration

	logger  *slog.Logger
	metrics *Metrics

	onConnected    func(string)
	onDisconnected func(string)

	connsWaitGroup *sync.WaitGroup
	connsMu        *sync.Mutex
	conns          map[string]Connection

	// ctx is cancelled on Shutdown, stopping in-flight invocations.
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	served chan struct{}
}

// NewServer creates a Server that answers calls with the capabilities in registry.
func NewServer(registry *Registry, transport ServerTransport, options ...ServerOption) Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := Server{
		registry:       registry,
		transport:      transport,
		logger:         slog.Default(),
		connsWaitGroup: &sync.WaitGroup{},
		connsMu:        &sync.Mutex{},
		conns:          make(map[string]Connection),
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
		served:         make(chan struct{}),
	}
	for _, opt := range options {
		opt(&s)
	}
	return s
}

// WithServerLogger sets the logger for the server.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger.With(
			slog.String("package", "go-jsonrpc"),
			slog.String("component", "server"),
		)
	}
}

// WithServerMetrics sets the metrics the server and its dispatchers record into.
func WithServerMetrics(metrics *Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = metrics
	}
}

// WithServerInvocationTimeout bounds each capability invocation, see WithInvocationTimeout.
func WithServerInvocationTimeout(timeout time.Duration) ServerOption {
	return func(s *Server) {
		s.invocationTimeout = timeout
	}
}

// WithServerOnConnected sets the callback for when a connection is accepted.
// The callback's parameter is the ID of the connection.
func WithServerOnConnected(onConnected func(string)) ServerOption {
	return func(s *Server) {
		s.onConnected = onConnected
	}
}

// WithServerOnDisconnected sets the callback for when a connection ends.
// The callback's parameter is the ID of the connection.
func WithServerOnDisconnected(onDisconnected func(string)) ServerOption {
	return func(s *Server) {
		s.onDisconnected = onDisconnected
	}
}

// Serve accepts connections from the transport and serves each of them until it closes.
//
// Serve blocks until the transport stops yielding connections and every connection it yielded
// has ended.
func (s Server) Serve() {
	defer close(s.served)

	// This loop would break when the transport is shut down.
	for conn := range s.transport.Connections() {
		s.connsMu.Lock()
		select {
		case <-s.done:
			s.connsMu.Unlock()
			_ = conn.Close()
			continue
		default:
		}
		s.conns[conn.ID()] = conn
		s.connsMu.Unlock()

		s.connsWaitGroup.Add(1)
		go func() {
			defer s.connsWaitGroup.Done()
			s.serveConnection(conn)
		}()
	}

	s.connsWaitGroup.Wait()
}

// Shutdown stops the server: it closes every active connection, shuts the transport down and
// waits for Serve to return. It returns an error if the transport fails to shut down or ctx is
// done first.
func (s Server) Shutdown(ctx context.Context) error {
	close(s.done)
	s.cancel()

	s.connsMu.Lock()
	for _, conn := range s.conns {
		if err := conn.Close(); err != nil {
			s.logger.Warn("failed to close connection",
				slog.String("connectionID", conn.ID()),
				slog.String("err", err.Error()))
		}
	}
	s.connsMu.Unlock()

	if err := s.transport.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown transport: %w", err)
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("failed to wait for connections: %w", ctx.Err())
	case <-s.served:
	}
	return nil
}

func (s Server) serveConnection(conn Connection) {
	logger := s.logger.With(slog.String("connectionID", conn.ID()))

	s.metrics.connectionOpened()
	if s.onConnected != nil {
		s.onConnected(conn.ID())
	}

	d := NewDispatcher(s.registry, conn,
		WithDispatcherLogger(logger),
		WithDispatcherMetrics(s.metrics),
		WithInvocationTimeout(s.invocationTimeout),
	)
	if err := d.Run(s.ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("connection stopped by shutdown")
		} else {
			logger.Error("connection failed", slog.String("err", err.Error()))
		}
	}

	if err := conn.Close(); err != nil {
		logger.Warn("failed to close connection", slog.String("err", err.Error()))
	}

	s.connsMu.Lock()
	delete(s.conns, conn.ID())
	s.connsMu.Unlock()

	s.metrics.connectionClosed()
	if s.onDisconnected != nil {
		s.onDisconnected(conn.ID())
	}
}
