package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ClientOption is a function that configures a client.
type ClientOption func(*Client)

// Client issues calls over a Transport. Calls are made one at a time: each Call sends its request
// and waits for the response carrying the same id before the next call may start.
type Client struct {
	transport Transport

	writeTimeout time.Duration
	readTimeout  time.Duration

	logger *slog.Logger

	mu *sync.Mutex
}

// BatchCall is one member of a batch built by Client.Batch.
type BatchCall struct {
	Method string
	Params any
	// Notify sends the call as a notification, which gets no response.
	Notify bool
}

var (
	defaultClientWriteTimeout = 30 * time.Second
	defaultClientReadTimeout  = 30 * time.Second
)

// NewClient creates a Client over transport.
func NewClient(transport Transport, options ...ClientOption) *Client {
	c := &Client{
		transport:    transport,
		writeTimeout: defaultClientWriteTimeout,
		readTimeout:  defaultClientReadTimeout,
		logger:       slog.Default(),
		mu:           &sync.Mutex{},
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// WithClientWriteTimeout sets the timeout for sending a message.
func WithClientWriteTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.writeTimeout = timeout
	}
}

// WithClientReadTimeout sets the timeout for waiting on a response.
func WithClientReadTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.readTimeout = timeout
	}
}

// WithClientLogger sets the logger for the client.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger.With(
			slog.String("package", "go-jsonrpc"),
			slog.String("component", "client"),
		)
	}
}

// Call invokes method with params and decodes the result into result, which may be nil to
// discard it. A response carrying an error is returned as *ErrorObject.
func (c *Client) Call(ctx context.Context, method string, params any, result any) error {
	req, err := newRequest(method, params)
	if err != nil {
		return err
	}
	bs, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.send(ctx, bs); err != nil {
		return err
	}

	for {
		msg, err := c.receive(ctx)
		if err != nil {
			return err
		}
		var resp Response
		if err := json.Unmarshal([]byte(msg), &resp); err != nil {
			c.logger.Warn("ignored undecodable message", slog.String("err", err.Error()))
			continue
		}
		if resp.ID != req.ID {
			// A parse or invalid request error cannot name our id.
			if resp.ID.IsNull() && resp.Error != nil {
				return resp.Error
			}
			c.logger.Warn("ignored response for another request", slog.String("id", resp.ID.String()))
			continue
		}
		return decodeResponse(resp, result)
	}
}

// Notify sends a notification. No response is awaited.
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	n, err := newNotification(method, params)
	if err != nil {
		return err
	}
	bs, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.send(ctx, bs)
}

// Batch sends calls as one batch and returns the responses, ordered like the requests among
// calls. When every call is a notification no response is awaited and the result is nil.
func (c *Client) Batch(ctx context.Context, calls ...BatchCall) ([]Response, error) {
	if len(calls) == 0 {
		return nil, errors.New("batch must not be empty")
	}

	batch := make(Batch, 0, len(calls))
	var ids []ID
	for _, call := range calls {
		if call.Notify {
			n, err := newNotification(call.Method, call.Params)
			if err != nil {
				return nil, err
			}
			batch = append(batch, BatchEntry{Notification: &n})
			continue
		}
		req, err := newRequest(call.Method, call.Params)
		if err != nil {
			return nil, err
		}
		ids = append(ids, req.ID)
		batch = append(batch, BatchEntry{Request: &req})
	}

	bs, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.send(ctx, bs); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	msg, err := c.receive(ctx)
	if err != nil {
		return nil, err
	}
	var resps []Response
	if err := json.Unmarshal([]byte(msg), &resps); err != nil {
		// The whole batch may be rejected with a single response.
		var resp Response
		if jErr := json.Unmarshal([]byte(msg), &resp); jErr == nil && resp.Error != nil {
			return nil, resp.Error
		}
		return nil, fmt.Errorf("failed to unmarshal batch response: %w", err)
	}

	byID := make(map[ID]Response, len(resps))
	for _, resp := range resps {
		byID[resp.ID] = resp
	}
	ordered := make([]Response, 0, len(ids))
	for _, id := range ids {
		resp, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("missing response for request %s", id)
		}
		ordered = append(ordered, resp)
	}
	return ordered, nil
}

// Close closes the underlying transport.
func (c *Client) Close() error {
	return c.transport.Close()
}

func (c *Client) send(ctx context.Context, bs []byte) error {
	sCtx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()

	if err := c.transport.Send(sCtx, string(bs)); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (c *Client) receive(ctx context.Context) (string, error) {
	rCtx, cancel := context.WithTimeout(ctx, c.readTimeout)
	defer cancel()

	msg, err := c.transport.Receive(rCtx)
	if err != nil {
		return "", fmt.Errorf("failed to receive response: %w", err)
	}
	return msg, nil
}

func newRequest(method string, params any) (Request, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return Request{}, err
	}
	return Request{
		JSONRPC: Version,
		Method:  method,
		Params:  raw,
		ID:      StringID(uuid.New().String()),
	}, nil
}

func newNotification(method string, params any) (Notification, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return Notification{}, err
	}
	return Notification{JSONRPC: Version, Method: method, Params: raw}, nil
}

func marshalParams(params any) (json.RawMessage, error) {
	switch p := params.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	}
	bs, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	return bs, nil
}

func decodeResponse(resp Response, result any) error {
	if resp.Error != nil {
		return resp.Error
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return nil
}
