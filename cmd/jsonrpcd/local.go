package main

import (
	"context"
	"sync"

	"github.com/MegaGrindStone/go-jsonrpc"
)

// localTransport is a client Transport served in-process. Send runs the dispatch to completion
// and queues the reply, if any, for Receive.
type localTransport struct {
	dispatcher *jsonrpc.Dispatcher
	replies    chan string

	done      chan struct{}
	closeOnce *sync.Once
}

func newLocalTransport(dispatcher *jsonrpc.Dispatcher) *localTransport {
	return &localTransport{
		dispatcher: dispatcher,
		replies:    make(chan string, 1),
		done:       make(chan struct{}),
		closeOnce:  &sync.Once{},
	}
}

func (t *localTransport) Send(ctx context.Context, message string) error {
	select {
	case <-t.done:
		return jsonrpc.ErrConnectionClosed
	default:
	}

	reply := t.dispatcher.Dispatch(ctx, message)
	if reply == "" {
		return nil
	}

	select {
	case t.replies <- reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return jsonrpc.ErrConnectionClosed
	}
}

func (t *localTransport) Receive(ctx context.Context) (string, error) {
	select {
	case reply := <-t.replies:
		return reply, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-t.done:
		return "", jsonrpc.ErrConnectionClosed
	}
}

func (t *localTransport) Close() error {
	t.closeOnce.Do(func() { close(t.done) })
	return nil
}
