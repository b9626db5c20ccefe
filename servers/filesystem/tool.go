package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"

	"github.com/MegaGrindStone/go-jsonrpc"
)

func (s Server) readFile(_ context.Context, args PathArgs) (string, error) {
	p, err := s.resolve(args.Path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(p)
	if err != nil {
		return "", fmt.Errorf("failed to stat file with path %s: %w", args.Path, err)
	}
	if info.IsDir() {
		return "", jsonrpc.InvalidParamsError(fmt.Sprintf("path %s is a directory, not a file", args.Path), nil)
	}

	bs, err := os.ReadFile(p)
	if err != nil {
		return "", fmt.Errorf("failed to read file with path %s: %w", args.Path, err)
	}
	return string(bs), nil
}

func (s Server) readMultipleFiles(ctx context.Context, args ReadMultipleFilesArgs) ([]FileContent, error) {
	contents := make([]FileContent, 0, len(args.Paths))
	for _, path := range args.Paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		content, err := s.readFile(ctx, PathArgs{Path: path})
		if err != nil {
			contents = append(contents, FileContent{Path: path, Error: err.Error()})
			continue
		}
		contents = append(contents, FileContent{Path: path, Content: content})
	}
	return contents, nil
}

func (s Server) writeFile(_ context.Context, args WriteFileArgs) (PathArgs, error) {
	p, err := s.resolve(args.Path)
	if err != nil {
		return PathArgs{}, err
	}

	if err := os.WriteFile(p, []byte(args.Content), 0600); err != nil {
		return PathArgs{}, fmt.Errorf("failed to write file with path %s: %w", args.Path, err)
	}
	s.logger.Info("wrote file", slog.String("path", p), slog.Int("bytes", len(args.Content)))
	return PathArgs{Path: p}, nil
}

func (s Server) editFile(_ context.Context, args EditFileArgs) (EditResult, error) {
	p, err := s.resolve(args.Path)
	if err != nil {
		return EditResult{}, err
	}

	original, err := os.ReadFile(p)
	if err != nil {
		return EditResult{}, fmt.Errorf("failed to read file with path %s: %w", args.Path, err)
	}

	modified, err := applyEdits(string(original), args.Edits)
	if err != nil {
		return EditResult{}, jsonrpc.InvalidParamsError("failed to apply edits", err)
	}

	result := EditResult{Diff: unifiedDiff(string(original), modified, args.Path)}
	if args.DryRun {
		return result, nil
	}

	if err := os.WriteFile(p, []byte(modified), 0600); err != nil {
		return EditResult{}, fmt.Errorf("failed to write file with path %s: %w", args.Path, err)
	}
	s.logger.Info("edited file", slog.String("path", p), slog.Int("edits", len(args.Edits)))
	result.Applied = true
	return result, nil
}

func (s Server) createDirectory(_ context.Context, args PathArgs) (PathArgs, error) {
	p, err := s.resolve(args.Path)
	if err != nil {
		return PathArgs{}, err
	}

	if err := os.MkdirAll(p, 0700); err != nil {
		return PathArgs{}, fmt.Errorf("failed to create directory with path %s: %w", args.Path, err)
	}
	return PathArgs{Path: p}, nil
}

func (s Server) listDirectory(_ context.Context, args PathArgs) ([]Entry, error) {
	p, err := s.resolve(args.Path)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(p)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory with path %s: %w", args.Path, err)
	}

	listing := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		typ := entryTypeFile
		if entry.IsDir() {
			typ = entryTypeDirectory
		}
		listing = append(listing, Entry{Name: entry.Name(), Type: typ})
	}
	return listing, nil
}

func (s Server) directoryTree(ctx context.Context, args PathArgs) ([]Entry, error) {
	p, err := s.resolve(args.Path)
	if err != nil {
		return nil, err
	}
	return s.buildTree(ctx, p)
}

func (s Server) moveFile(_ context.Context, args MoveFileArgs) (PathArgs, error) {
	source, err := s.resolve(args.Source)
	if err != nil {
		return PathArgs{}, err
	}
	destination, err := s.resolve(args.Destination)
	if err != nil {
		return PathArgs{}, err
	}

	if _, err := os.Lstat(destination); err == nil {
		return PathArgs{}, jsonrpc.InvalidParamsError(fmt.Sprintf("destination %s already exists", args.Destination), nil)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return PathArgs{}, fmt.Errorf("failed to stat destination %s: %w", args.Destination, err)
	}

	if err := os.Rename(source, destination); err != nil {
		return PathArgs{}, fmt.Errorf("failed to move file with path %s: %w", args.Source, err)
	}
	s.logger.Info("moved file", slog.String("source", source), slog.String("destination", destination))
	return PathArgs{Path: destination}, nil
}

func (s Server) searchFiles(ctx context.Context, args SearchFilesArgs) ([]string, error) {
	root, err := s.resolve(args.Path)
	if err != nil {
		return nil, err
	}

	excludes, err := compileExcludes(args.Exclude)
	if err != nil {
		return nil, jsonrpc.InvalidParamsError("invalid exclude patterns", err)
	}

	results, err := s.search(ctx, root, args.Pattern, excludes)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", args.Path, err)
	}
	if results == nil {
		results = []string{}
	}
	slices.Sort(results)
	return results, nil
}

func (s Server) getFileInfo(_ context.Context, args PathArgs) (FileInfo, error) {
	p, err := s.resolve(args.Path)
	if err != nil {
		return FileInfo{}, err
	}

	info, err := os.Stat(p)
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to stat file with path %s: %w", args.Path, err)
	}

	return FileInfo{
		Path:        p,
		Size:        info.Size(),
		Modified:    info.ModTime(),
		IsDirectory: info.IsDir(),
		IsFile:      info.Mode().IsRegular(),
		Permissions: fmt.Sprintf("%#o", info.Mode().Perm()),
	}, nil
}

func (s Server) listAllowedDirectories(context.Context, struct{}) ([]string, error) {
	return s.Roots(), nil
}
