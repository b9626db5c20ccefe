package jsonrpc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// StreamOption represents the options for a StreamTransport.
type StreamOption func(*StreamTransport)

// StreamTransport frames messages as newline-terminated lines over a reader and writer pair, such
// as stdin and stdout or a network connection. Blank lines are skipped.
//
// Writes are serialized through a single goroutine, so Send is safe for concurrent use.
type StreamTransport struct {
	id     string
	reader *bufio.Reader
	writer io.Writer
	closer io.Closer
	logger *slog.Logger

	lines         chan streamLine
	writeMessages chan streamMessage
	done          chan struct{}
	writeClosed   chan struct{}
	closeOnce     *sync.Once
	closeErr      error
}

// StdIO serves a single connection over a reader and writer pair, typically os.Stdin and
// os.Stdout. The iteration of Connections ends when that connection closes.
type StdIO struct {
	conn   *StreamTransport
	closed chan struct{}
}

type streamLine struct {
	line string
	err  error
}

type streamMessage struct {
	msg  []byte
	errs chan error
}

// NewStreamTransport creates a StreamTransport reading from reader and writing to writer. It
// starts reading immediately.
func NewStreamTransport(reader io.Reader, writer io.Writer, options ...StreamOption) *StreamTransport {
	s := &StreamTransport{
		id: uuid.New().String(),
		// bufio.Reader instead of bufio.Scanner, so long lines never hit a token limit.
		reader:        bufio.NewReader(reader),
		writer:        writer,
		logger:        slog.Default(),
		lines:         make(chan streamLine),
		writeMessages: make(chan streamMessage),
		done:          make(chan struct{}),
		writeClosed:   make(chan struct{}),
		closeOnce:     &sync.Once{},
	}
	for _, opt := range options {
		opt(s)
	}

	go s.readLines()
	go s.processWriteMessages()

	return s
}

// WithStreamLogger sets the logger for the transport.
func WithStreamLogger(logger *slog.Logger) StreamOption {
	return func(s *StreamTransport) {
		s.logger = logger
	}
}

// WithStreamCloser sets a closer, usually the underlying connection, that Close releases. Closing
// it also unblocks a pending read.
func WithStreamCloser(closer io.Closer) StreamOption {
	return func(s *StreamTransport) {
		s.closer = closer
	}
}

// ID returns the identifier of the transport.
func (s *StreamTransport) ID() string {
	return s.id
}

// Receive returns the next non-blank line, without its line terminator.
func (s *StreamTransport) Receive(ctx context.Context) (string, error) {
	for {
		select {
		case <-s.done:
			return "", ErrConnectionClosed
		case <-ctx.Done():
			return "", ctx.Err()
		case l, ok := <-s.lines:
			if !ok {
				return "", ErrConnectionClosed
			}
			if l.err != nil {
				if errors.Is(l.err, io.EOF) || errors.Is(l.err, net.ErrClosed) {
					return "", ErrConnectionClosed
				}
				return "", fmt.Errorf("failed to read message: %w", l.err)
			}
			if strings.TrimSpace(l.line) == "" {
				continue
			}
			return l.line, nil
		}
	}
}

// Send writes message followed by a newline.
func (s *StreamTransport) Send(ctx context.Context, message string) error {
	msg := streamMessage{
		msg:  append([]byte(message), '\n'),
		errs: make(chan error, 1),
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrConnectionClosed
	case s.writeMessages <- msg:
	}

	select {
	case err := <-msg.errs:
		if err != nil {
			return fmt.Errorf("failed to write message: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrConnectionClosed
	}
}

// Close stops the transport and closes the closer set with WithStreamCloser, if any. It is safe
// to call more than once.
func (s *StreamTransport) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.closer != nil {
			s.closeErr = s.closer.Close()
		}
		<-s.writeClosed
	})
	return s.closeErr
}

// Done returns a channel that is closed once the transport is closed.
func (s *StreamTransport) Done() <-chan struct{} {
	return s.done
}

func (s *StreamTransport) readLines() {
	defer close(s.lines)

	for {
		line, err := s.reader.ReadString('\n')
		if line != "" {
			select {
			case <-s.done:
				return
			case s.lines <- streamLine{line: strings.TrimRight(line, "\r\n")}:
			}
		}
		if err != nil {
			select {
			case <-s.done:
			case s.lines <- streamLine{err: err}:
			}
			return
		}
	}
}

func (s *StreamTransport) processWriteMessages() {
	defer close(s.writeClosed)

	for {
		var msg streamMessage
		select {
		case <-s.done:
			return
		case msg = <-s.writeMessages:
		}

		_, err := s.writer.Write(msg.msg)
		msg.errs <- err
	}
}

// NewStdIO creates a StdIO serving one connection over reader and writer.
func NewStdIO(reader io.Reader, writer io.Writer, options ...StreamOption) StdIO {
	return StdIO{
		conn:   NewStreamTransport(reader, writer, options...),
		closed: make(chan struct{}),
	}
}

// Connections implements ServerTransport. It yields the single connection and returns once that
// connection is closed.
func (s StdIO) Connections() iter.Seq[Connection] {
	return func(yield func(Connection) bool) {
		defer close(s.closed)

		if !yield(s.conn) {
			return
		}
		<-s.conn.Done()
	}
}

// Shutdown implements ServerTransport.
func (s StdIO) Shutdown(ctx context.Context) error {
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
	}
	return nil
}
