package everything

import (
	"log/slog"
	"os"

	"github.com/MegaGrindStone/go-jsonrpc"
)

// Server is a set of reference capabilities that exercise every path of the dispatcher: plain
// results, schema-rejected params, execution failures, long running calls that honor
// cancellation, and larger structured results.
//
// Server is not intended for production use. It backs the jsonrpcd daemon's demo mode and the
// end-to-end tests of clients.
type Server struct {
	logger  *slog.Logger
	environ func() []string
}

// ServerOption configures a Server.
type ServerOption func(*Server)

const (
	// MethodEcho returns the message it was given.
	MethodEcho = "echo"
	// MethodAdd sums two numbers.
	MethodAdd = "add"
	// MethodUpper upper-cases a text.
	MethodUpper = "upper"
	// MethodSleep waits for the requested duration in steps, or until the call is cancelled.
	MethodSleep = "sleep"
	// MethodFail always fails with the requested message.
	MethodFail = "fail"
	// MethodDiff computes a unified diff between two texts.
	MethodDiff = "diff"
	// MethodEnv lists environment variables, optionally filtered by prefix.
	MethodEnv = "env"
	// MethodPatch applies a JSON Patch or JSON Merge Patch to a document.
	MethodPatch = "patch"
	// MethodListResources pages through the static resources.
	MethodListResources = "resources/list"
	// MethodReadResource returns the content of one static resource.
	MethodReadResource = "resources/read"
	// MethodResourceTemplates lists the URI templates of the static resources.
	MethodResourceTemplates = "resources/templates"
	// MethodComplete completes the arguments of resource templates.
	MethodComplete = "resources/complete"
)

// NewServer creates a Server.
func NewServer(options ...ServerOption) Server {
	s := Server{
		logger:  slog.Default(),
		environ: os.Environ,
	}
	for _, opt := range options {
		opt(&s)
	}
	return s
}

// WithLogger sets the logger used by long running capabilities to report progress.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger.With(slog.String("package", "everything"))
	}
}

// WithEnviron replaces the source of environment variables used by the env capability.
func WithEnviron(environ func() []string) ServerOption {
	return func(s *Server) {
		s.environ = environ
	}
}

// Register adds every capability of s to b and returns b.
func (s Server) Register(b *jsonrpc.RegistryBuilder) *jsonrpc.RegistryBuilder {
	return b.
		Register(MethodEcho, jsonrpc.WithSchema(echoSchema, jsonrpc.Typed(s.echo))).
		Register(MethodAdd, jsonrpc.WithSchema(addSchema, jsonrpc.Typed(s.add))).
		Register(MethodUpper, jsonrpc.WithSchema(upperSchema, jsonrpc.Typed(s.upper))).
		Register(MethodSleep, jsonrpc.WithSchema(sleepSchema, jsonrpc.Typed(s.sleep))).
		Register(MethodFail, jsonrpc.Typed(s.fail)).
		Register(MethodDiff, jsonrpc.WithSchema(diffSchema, jsonrpc.Typed(s.diff))).
		Register(MethodEnv, jsonrpc.Typed(s.env)).
		Register(MethodPatch, jsonrpc.WithSchema(patchSchema, jsonrpc.Typed(s.patch))).
		Register(MethodListResources, jsonrpc.Typed(s.listResources)).
		Register(MethodReadResource, jsonrpc.WithSchema(readResourceSchema, jsonrpc.Typed(s.readResource))).
		Register(MethodResourceTemplates, jsonrpc.Typed(s.resourceTemplates)).
		Register(MethodComplete, jsonrpc.WithSchema(completeSchema, jsonrpc.Typed(s.complete)))
}
