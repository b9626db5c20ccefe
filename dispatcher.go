package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DispatcherOption represents the options for the dispatcher.
type DispatcherOption func(*Dispatcher)

// Dispatcher turns inbound message text into capability invocations and outbound responses. It
// handles one message at a time: a message is fully processed, and its reply sent, before the
// next one is received.
type Dispatcher struct {
	registry  *Registry
	transport Transport

	invocationTimeout time.Duration

	logger  *slog.Logger
	metrics *Metrics
}

// fallbackResponse is sent when a response cannot be encoded at all.
const fallbackResponse = `{"jsonrpc":"2.0","error":{"code":-32603,"message":"Internal error"},"id":null}`

// NewDispatcher creates a Dispatcher that looks capabilities up in registry and exchanges
// messages over transport. The transport may be nil when only Dispatch is used.
func NewDispatcher(registry *Registry, transport Transport, options ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry:  registry,
		transport: transport,
		logger:    slog.Default(),
	}
	for _, opt := range options {
		opt(d)
	}
	return d
}

// WithDispatcherLogger sets the logger for the dispatcher.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithDispatcherMetrics sets the metrics the dispatcher records into.
func WithDispatcherMetrics(metrics *Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = metrics
	}
}

// WithInvocationTimeout bounds each capability invocation with a context deadline. Zero, the
// default, leaves invocations unbounded.
func WithInvocationTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.invocationTimeout = timeout
	}
}

// Run receives messages from the transport and answers them until the connection closes. It
// returns nil when the transport reports ErrConnectionClosed on either receive or send, and a
// transport error when receiving or sending fails for any other reason.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d.transport == nil {
		return InternalError("dispatcher has no transport", nil)
	}

	for {
		msg, err := d.transport.Receive(ctx)
		if err != nil {
			if errors.Is(err, ErrConnectionClosed) {
				d.logger.Info("connection closed")
				return nil
			}
			return TransportError("failed to receive message", err)
		}

		out := d.Dispatch(ctx, msg)
		if out == "" {
			continue
		}
		if err := d.transport.Send(ctx, out); err != nil {
			if errors.Is(err, ErrConnectionClosed) {
				d.logger.Info("connection closed before response was sent")
				return nil
			}
			return TransportError("failed to send response", err)
		}
	}
}

// Dispatch processes one inbound message and returns the text to send back, or an empty string
// when nothing must be sent (a notification, or a batch of notifications only).
//
// The message is tried, in order, as a batch, a request and a notification. A message that is none
// of those, whether or not it is valid JSON, yields a parse error response with a null id. An
// empty batch holds no requests and yields nothing.
func (d *Dispatcher) Dispatch(ctx context.Context, message string) string {
	data := bytes.TrimSpace([]byte(message))

	var raw json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		d.metrics.recordMessage(kindInvalid)
		d.logger.Debug("received malformed message", slog.String("err", err.Error()))
		return d.encode(d.finalize(NewErrorResponse(NullID(), JSONError(err))))
	}

	switch data[0] {
	case '[':
		d.metrics.recordMessage(kindBatch)
		batch, err := ParseBatch(data)
		if err != nil {
			return d.encode(d.finalize(NewErrorResponse(NullID(), JSONError(err))))
		}
		responses := d.processBatch(ctx, batch)
		if len(responses) == 0 {
			return ""
		}
		return d.encode(responses)
	case '{':
		req, n, err := ParseCall(data)
		switch {
		case err != nil:
			d.metrics.recordMessage(kindInvalid)
			d.logger.Debug("received invalid call", slog.String("err", err.Error()))
			return d.encode(d.finalize(NewErrorResponse(NullID(), JSONError(err))))
		case req != nil:
			d.metrics.recordMessage(kindRequest)
			return d.encode(d.processRequest(ctx, *req))
		default:
			d.metrics.recordMessage(kindNotification)
			d.handleNotification(ctx, *n)
			return ""
		}
	default:
		d.metrics.recordMessage(kindInvalid)
		return d.encode(d.finalize(NewErrorResponse(NullID(),
			JSONError(errors.New("message must be a JSON object or array")))))
	}
}

func (d *Dispatcher) processBatch(ctx context.Context, batch Batch) []Response {
	responses := make([]Response, 0, len(batch))
	for _, entry := range batch {
		switch {
		case entry.Request != nil:
			responses = append(responses, d.processRequest(ctx, *entry.Request))
		case entry.Notification != nil:
			d.handleNotification(ctx, *entry.Notification)
		default:
			responses = append(responses, d.finalize(NewErrorResponse(NullID(), entry.Err)))
		}
	}
	return responses
}

func (d *Dispatcher) processRequest(ctx context.Context, req Request) Response {
	logger := d.logger.With(slog.String("method", req.Method), slog.String("id", req.ID.String()))

	if err := req.Validate(); err != nil {
		logger.Debug("rejected invalid request", slog.String("err", err.Error()))
		return d.finalize(NewErrorResponse(req.ID, err))
	}

	dreq, err := ToDomainRequest(req)
	if err != nil {
		return d.finalize(NewErrorResponse(req.ID, err))
	}

	capability, ok := d.registry.Get(dreq.Tool)
	if !ok {
		logger.Debug("capability not found")
		return d.finalize(NewErrorResponse(req.ID, NotFoundError(dreq.Tool)))
	}

	result := d.invoke(ctx, capability, dreq)
	if result.Err != nil {
		logger.Info("capability failed", slog.String("err", result.Err.Error()))
	}

	resp, err := ToWireResponse(result, dreq.RequestID)
	if err != nil {
		logger.Error("failed to convert result", slog.String("err", err.Error()))
		resp = NewErrorResponse(req.ID, err)
	}
	return d.finalize(resp)
}

// handleNotification runs a notification and logs its failure, since no reply is ever sent.
func (d *Dispatcher) handleNotification(ctx context.Context, n Notification) {
	if err := d.processNotification(ctx, n); err != nil {
		reason := "execution"
		if Reference(err) == RefProtocol {
			reason = "invalid"
		}
		d.metrics.recordNotificationFailure(reason)
		d.logger.Warn("failed to process notification",
			slog.String("method", n.Method),
			slog.String("err", err.Error()))
	}
}

// processNotification runs a notification. A method with no registered capability is ignored.
func (d *Dispatcher) processNotification(ctx context.Context, n Notification) error {
	if err := n.Validate(); err != nil {
		return ProtocolError(fmt.Sprintf("invalid notification: %v", err))
	}

	dreq, err := ToDomainRequest(Request{JSONRPC: n.JSONRPC, Method: n.Method, Params: n.Params, ID: NullID()})
	if err != nil {
		return err
	}

	capability, ok := d.registry.Get(dreq.Tool)
	if !ok {
		d.logger.Debug("ignored notification for unknown capability", slog.String("method", n.Method))
		return nil
	}

	if result := d.invoke(ctx, capability, dreq); result.Err != nil {
		return DomainError(fmt.Sprintf("notification %q failed", n.Method), ExecutionError(result.Err))
	}
	return nil
}

func (d *Dispatcher) invoke(ctx context.Context, capability Capability, dreq DomainRequest) DomainResult {
	if d.invocationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.invocationTimeout)
		defer cancel()
	}

	start := time.Now()
	value, err := capability.Execute(ctx, dreq.Params)
	d.metrics.recordInvocation(dreq.Tool, time.Since(start), err)
	if err != nil {
		return Failure(err)
	}
	return Success(value)
}

// finalize re-validates a response before it leaves the dispatcher. A response that fails is
// replaced by an internal error response.
func (d *Dispatcher) finalize(resp Response) Response {
	if err := resp.Validate(); err != nil {
		d.logger.Error("generated invalid response", slog.String("err", err.Error()))
		resp = NewErrorResponse(resp.ID, InternalError("invalid response generated", err))
	}
	d.metrics.recordResponse(resp)
	return resp
}

func (d *Dispatcher) encode(v any) string {
	bs, err := json.Marshal(v)
	if err != nil {
		d.logger.Error("failed to marshal response", slog.String("err", err.Error()))
		return fallbackResponse
	}
	return string(bs)
}
