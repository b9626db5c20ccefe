package jsonrpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/tmaxmax/go-sse"
)

// SSEServer is a ServerTransport over HTTP. Clients open an event stream with GET on the events
// handler, which first sends an "endpoint" event carrying the URL to POST messages to. Each POSTed
// body is one inbound message; every outbound message is delivered as a "message" event on the
// stream.
//
// The handlers are plain http.Handlers and can be mounted on any router.
type SSEServer struct {
	messageURL     string
	maxMessageSize int64
	logger         *slog.Logger

	connections chan *sseConnection
	removed     chan string
	lookups     chan sseLookup

	done   chan struct{}
	closed chan struct{}
}

// SSEServerOption represents the options for the SSEServer.
type SSEServerOption func(*SSEServer)

// SSEClient is a client-side Transport for an SSEServer.
type SSEClient struct {
	httpClient *http.Client
	messageURL string
	logger     *slog.Logger

	messages chan string
	body     io.ReadCloser
	cancel   context.CancelFunc

	done      chan struct{}
	closeOnce *sync.Once
}

// SSEClientOption represents the options for the SSEClient.
type SSEClientOption func(*sseClientConfig)

type sseClientConfig struct {
	httpClient     *http.Client
	logger         *slog.Logger
	maxPayloadSize int
}

type sseConnection struct {
	id       string
	sess     *sse.Session
	sendMsgs chan sseOutbound
	received chan string
	logger   *slog.Logger

	done       chan struct{}
	sendClosed chan struct{}
	closeOnce  *sync.Once
}

// sseLookup asks the router for the connection with the given ID. found receives nil when there
// is none.
type sseLookup struct {
	connID string
	found  chan *sseConnection
}

type sseOutbound struct {
	msg  *sse.Message
	errs chan error
}

const (
	connectionIDParam            = "connectionID"
	defaultSSEMaxMessageSize     = 4 << 20
	sseReceiveBuffer             = 16
	sseEventEndpoint             = "endpoint"
	sseEventMessage              = "message"
	errMsgConnectionNotAvailable = "connection not found"
	errMsgShuttingDown           = "server is shutting down"
)

// NewSSEServer creates an SSEServer that tells clients to POST their messages to messageURL.
// messageURL may be relative to the events URL.
func NewSSEServer(messageURL string, options ...SSEServerOption) SSEServer {
	s := SSEServer{
		messageURL:       messageURL,
		maxMessageSize:   defaultSSEMaxMessageSize,
		logger:           slog.Default(),
		connections: make(chan *sseConnection),
		removed:     make(chan string),
		lookups:     make(chan sseLookup),
		done:        make(chan struct{}),
		closed:      make(chan struct{}),
	}
	for _, opt := range options {
		opt(&s)
	}
	return s
}

// WithSSEServerLogger sets the logger for the server transport.
func WithSSEServerLogger(logger *slog.Logger) SSEServerOption {
	return func(s *SSEServer) {
		s.logger = logger
	}
}

// WithSSEServerMaxMessageSize limits the size of a POSTed message body.
func WithSSEServerMaxMessageSize(size int64) SSEServerOption {
	return func(s *SSEServer) {
		s.maxMessageSize = size
	}
}

// Connections implements ServerTransport.
func (s SSEServer) Connections() iter.Seq[Connection] {
	return func(yield func(Connection) bool) {
		defer close(s.closed)

		// Active connections by ID. The router only resolves IDs and never sends on a connection's
		// receive buffer; message handlers do that themselves.
		conns := make(map[string]*sseConnection)

		for {
			select {
			case <-s.done:
				return
			case conn := <-s.connections:
				go conn.processSendMessages()
				conns[conn.id] = conn
				if !yield(conn) {
					return
				}
			case id := <-s.removed:
				delete(conns, id)
			case l := <-s.lookups:
				l.found <- conns[l.connID]
			}
		}
	}
}

// Shutdown implements ServerTransport.
func (s SSEServer) Shutdown(ctx context.Context) error {
	close(s.done)

	select {
	case <-ctx.Done():
		return fmt.Errorf("failed to close SSE server: %w", ctx.Err())
	case <-s.closed:
	}
	return nil
}

// HandleSSE returns the handler that opens event streams. The stream stays open until the client
// goes away or the connection is closed by the server.
func (s SSEServer) HandleSSE() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := sse.Upgrade(w, r)
		if err != nil {
			nErr := fmt.Errorf("failed to upgrade connection: %w", err)
			s.logger.Error("failed to upgrade connection", slog.String("err", nErr.Error()))
			http.Error(w, nErr.Error(), http.StatusInternalServerError)
			return
		}

		connID := uuid.New().String()

		msg := sse.Message{
			Type: sse.Type(sseEventEndpoint),
		}
		msg.AppendData(fmt.Sprintf("%s?%s=%s", s.messageURL, connectionIDParam, connID))
		if err := sess.Send(&msg); err != nil {
			s.logger.Error("failed to write endpoint event", slog.String("err", err.Error()))
			return
		}
		if err := sess.Flush(); err != nil {
			s.logger.Error("failed to flush endpoint event", slog.String("err", err.Error()))
			return
		}

		conn := &sseConnection{
			id:         connID,
			sess:       sess,
			logger:     s.logger.With(slog.String("connectionID", connID)),
			sendMsgs:   make(chan sseOutbound),
			received:   make(chan string, sseReceiveBuffer),
			done:       make(chan struct{}),
			sendClosed: make(chan struct{}),
			closeOnce:  &sync.Once{},
		}

		select {
		case <-s.done:
			return
		case <-r.Context().Done():
			return
		case s.connections <- conn:
		}

		// Keep the stream open until either side ends it.
		select {
		case <-conn.done:
		case <-s.done:
			_ = conn.Close()
		case <-r.Context().Done():
			_ = conn.Close()
		}
		<-conn.sendClosed

		select {
		case s.removed <- connID:
		case <-s.done:
		}
	})
}

// HandleMessage returns the handler that accepts POSTed messages. The connection is selected by
// the connectionID query parameter of the endpoint URL. It answers 202 Accepted once the message
// is handed to its connection, and 404 Not Found for an unknown or closed connection. While the
// connection's receive buffer is full the request waits, holding up only that connection.
func (s SSEServer) HandleMessage() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		connID := r.URL.Query().Get(connectionIDParam)
		if connID == "" {
			nErr := fmt.Errorf("missing %s query parameter", connectionIDParam)
			s.logger.Warn("rejected message", slog.String("err", nErr.Error()))
			http.Error(w, nErr.Error(), http.StatusBadRequest)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxMessageSize))
		if err != nil {
			nErr := fmt.Errorf("failed to read message: %w", err)
			s.logger.Warn("rejected message", slog.String("err", nErr.Error()))
			http.Error(w, nErr.Error(), http.StatusBadRequest)
			return
		}

		l := sseLookup{connID: connID, found: make(chan *sseConnection, 1)}
		select {
		case <-s.done:
			http.Error(w, errMsgShuttingDown, http.StatusServiceUnavailable)
			return
		case <-r.Context().Done():
			return
		case s.lookups <- l:
		}

		conn := <-l.found
		if conn == nil {
			http.Error(w, errMsgConnectionNotAvailable, http.StatusNotFound)
			return
		}

		select {
		case <-s.done:
			http.Error(w, errMsgShuttingDown, http.StatusServiceUnavailable)
		case <-r.Context().Done():
		case <-conn.done:
			http.Error(w, errMsgConnectionNotAvailable, http.StatusNotFound)
		case conn.received <- string(body):
			w.WriteHeader(http.StatusAccepted)
		}
	})
}

func (c *sseConnection) ID() string { return c.id }

func (c *sseConnection) Receive(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-c.done:
		return "", ErrConnectionClosed
	case msg := <-c.received:
		return msg, nil
	}
}

func (c *sseConnection) Send(ctx context.Context, message string) error {
	msg := &sse.Message{
		Type: sse.Type(sseEventMessage),
	}
	msg.AppendData(message)

	out := sseOutbound{msg: msg, errs: make(chan error, 1)}

	// Queue the message, only processSendMessages writes to the stream.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrConnectionClosed
	case c.sendMsgs <- out:
	}

	select {
	case err := <-out.errs:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrConnectionClosed
	}
}

func (c *sseConnection) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}

func (c *sseConnection) processSendMessages() {
	defer close(c.sendClosed)

	for {
		select {
		case out := <-c.sendMsgs:
			if err := c.sess.Send(out.msg); err != nil {
				c.logger.Warn("failed to send message", slog.String("err", err.Error()))
				out.errs <- err
				continue
			}
			if err := c.sess.Flush(); err != nil {
				c.logger.Warn("failed to flush message", slog.String("err", err.Error()))
				out.errs <- err
				continue
			}
			out.errs <- nil
		case <-c.done:
			return
		}
	}
}

// WithSSEClientHTTPClient sets the HTTP client used for the stream and for POSTs.
func WithSSEClientHTTPClient(httpClient *http.Client) SSEClientOption {
	return func(c *sseClientConfig) {
		c.httpClient = httpClient
	}
}

// WithSSEClientLogger sets the logger for the client transport.
func WithSSEClientLogger(logger *slog.Logger) SSEClientOption {
	return func(c *sseClientConfig) {
		c.logger = logger
	}
}

// WithSSEClientMaxPayloadSize sets the maximum size of an event received from the server.
func WithSSEClientMaxPayloadSize(size int) SSEClientOption {
	return func(c *sseClientConfig) {
		c.maxPayloadSize = size
	}
}

// DialSSE opens an event stream at connectURL and waits for the endpoint event. The returned
// client must be closed with Close.
func DialSSE(ctx context.Context, connectURL string, options ...SSEClientOption) (*SSEClient, error) {
	cfg := sseClientConfig{
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
	}
	for _, opt := range options {
		opt(&cfg)
	}

	base, err := url.Parse(connectURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connect URL: %w", err)
	}

	// The stream outlives ctx, which only bounds the dial.
	streamCtx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, connectURL, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := cfg.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to connect to SSE server: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	c := &SSEClient{
		httpClient: cfg.httpClient,
		logger:     cfg.logger,
		messages:   make(chan string),
		body:       resp.Body,
		cancel:     cancel,
		done:       make(chan struct{}),
		closeOnce:  &sync.Once{},
	}

	var readCfg *sse.ReadConfig
	if cfg.maxPayloadSize > 0 {
		readCfg = &sse.ReadConfig{MaxEventSize: cfg.maxPayloadSize}
	}

	ready := make(chan error, 1)
	go c.listen(base, readCfg, ready)

	select {
	case err := <-ready:
		if err != nil {
			c.Close()
			return nil, err
		}
	case <-ctx.Done():
		c.Close()
		return nil, fmt.Errorf("failed to wait for endpoint: %w", ctx.Err())
	}
	return c, nil
}

// Receive implements Transport.
func (c *SSEClient) Receive(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case msg, ok := <-c.messages:
		if !ok {
			return "", ErrConnectionClosed
		}
		return msg, nil
	}
}

// Send implements Transport by POSTing message to the endpoint URL.
func (c *SSEClient) Send(ctx context.Context, message string) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.messageURL, bytes.NewReader([]byte(message)))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}

// Close implements Transport.
func (c *SSEClient) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
	})
	return nil
}

func (c *SSEClient) listen(base *url.URL, cfg *sse.ReadConfig, ready chan<- error) {
	defer func() {
		c.body.Close()
		close(c.messages)
	}()

	endpointSet := false
	for ev, err := range sse.Read(c.body, cfg) {
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				c.logger.Error("failed to read SSE event", slog.String("err", err.Error()))
			}
			if !endpointSet {
				ready <- fmt.Errorf("failed to read endpoint: %w", err)
			}
			return
		}

		switch ev.Type {
		case sseEventEndpoint:
			if endpointSet {
				c.logger.Warn("ignored repeated endpoint event")
				continue
			}
			u, err := url.Parse(ev.Data)
			if err != nil {
				ready <- fmt.Errorf("failed to parse endpoint URL: %w", err)
				return
			}
			if u.String() == "" {
				ready <- errors.New("empty endpoint URL")
				return
			}
			c.messageURL = base.ResolveReference(u).String()
			endpointSet = true
			close(ready)
		case sseEventMessage:
			if !endpointSet {
				c.logger.Error("received message before endpoint URL")
				continue
			}
			select {
			case <-c.done:
				return
			case c.messages <- ev.Data:
			}
		default:
			c.logger.Warn("unhandled event type", slog.String("type", ev.Type))
		}
	}

	if !endpointSet {
		ready <- errors.New("stream ended before endpoint event")
	}
}
