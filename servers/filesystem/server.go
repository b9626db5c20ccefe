package filesystem

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/MegaGrindStone/go-jsonrpc"
)

// Server exposes the local filesystem as a set of capabilities, restricted to a list of allowed
// root directories. Every path a caller passes is resolved, symlinks included, and rejected with
// an invalid params error when it falls outside the roots.
type Server struct {
	roots  []string
	logger *slog.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// Method names registered by Server.Register.
const (
	MethodReadFile               = "fs/read_file"
	MethodReadMultipleFiles      = "fs/read_multiple_files"
	MethodWriteFile              = "fs/write_file"
	MethodEditFile               = "fs/edit_file"
	MethodCreateDirectory        = "fs/create_directory"
	MethodListDirectory          = "fs/list_directory"
	MethodDirectoryTree          = "fs/directory_tree"
	MethodMoveFile               = "fs/move_file"
	MethodSearchFiles            = "fs/search_files"
	MethodGetFileInfo            = "fs/get_file_info"
	MethodListAllowedDirectories = "fs/list_allowed_directories"
)

// NewServer creates a Server restricted to roots.
//
// Each root must exist and be a directory. Roots are stored in their absolute, symlink-free form,
// so relative paths given by callers are resolved against the first root.
func NewServer(roots []string, options ...ServerOption) (Server, error) {
	if len(roots) == 0 {
		return Server{}, fmt.Errorf("at least one root directory is required")
	}

	resolved := make([]string, 0, len(roots))
	for _, root := range roots {
		abs, err := filepath.Abs(filepath.Clean(root))
		if err != nil {
			return Server{}, fmt.Errorf("failed to resolve root directory %s: %w", root, err)
		}
		realPath, err := filepath.EvalSymlinks(abs)
		if err != nil {
			return Server{}, fmt.Errorf("failed to stat root directory: %w", err)
		}
		info, err := os.Stat(realPath)
		if err != nil {
			return Server{}, fmt.Errorf("failed to stat root directory: %w", err)
		}
		if !info.IsDir() {
			return Server{}, fmt.Errorf("root directory is not a directory: %s", root)
		}
		resolved = append(resolved, realPath)
	}

	s := Server{
		roots:  resolved,
		logger: slog.Default(),
	}
	for _, opt := range options {
		opt(&s)
	}
	return s, nil
}

// WithLogger sets the logger used to trace mutating operations.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger.With(slog.String("package", "filesystem"))
	}
}

// Roots returns the resolved allowed directories.
func (s Server) Roots() []string {
	return append([]string(nil), s.roots...)
}

// Register adds every filesystem capability of s to b and returns b.
func (s Server) Register(b *jsonrpc.RegistryBuilder) *jsonrpc.RegistryBuilder {
	return b.
		Register(MethodReadFile, jsonrpc.WithSchema(pathSchema, jsonrpc.Typed(s.readFile))).
		Register(MethodReadMultipleFiles, jsonrpc.WithSchema(pathsSchema, jsonrpc.Typed(s.readMultipleFiles))).
		Register(MethodWriteFile, jsonrpc.WithSchema(writeFileSchema, jsonrpc.Typed(s.writeFile))).
		Register(MethodEditFile, jsonrpc.WithSchema(editFileSchema, jsonrpc.Typed(s.editFile))).
		Register(MethodCreateDirectory, jsonrpc.WithSchema(pathSchema, jsonrpc.Typed(s.createDirectory))).
		Register(MethodListDirectory, jsonrpc.WithSchema(pathSchema, jsonrpc.Typed(s.listDirectory))).
		Register(MethodDirectoryTree, jsonrpc.WithSchema(pathSchema, jsonrpc.Typed(s.directoryTree))).
		Register(MethodMoveFile, jsonrpc.WithSchema(moveFileSchema, jsonrpc.Typed(s.moveFile))).
		Register(MethodSearchFiles, jsonrpc.WithSchema(searchFilesSchema, jsonrpc.Typed(s.searchFiles))).
		Register(MethodGetFileInfo, jsonrpc.WithSchema(pathSchema, jsonrpc.Typed(s.getFileInfo))).
		Register(MethodListAllowedDirectories, jsonrpc.Typed(s.listAllowedDirectories))
}
