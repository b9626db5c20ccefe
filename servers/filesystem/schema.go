package filesystem

import (
	"time"

	"github.com/qri-io/jsonschema"
)

// PathArgs is the params of capabilities that act on a single path.
type PathArgs struct {
	Path string `json:"path"`
}

// ReadMultipleFilesArgs is the params of fs/read_multiple_files.
type ReadMultipleFilesArgs struct {
	Paths []string `json:"paths"`
}

// FileContent is one entry of the fs/read_multiple_files result. A file that could not be read
// carries Error instead of Content.
type FileContent struct {
	Path    string `json:"path"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// WriteFileArgs is the params of fs/write_file.
type WriteFileArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// EditFileArgs is the params of fs/edit_file.
type EditFileArgs struct {
	Path   string          `json:"path"`
	Edits  []EditOperation `json:"edits"`
	DryRun bool            `json:"dryRun"`
}

// EditOperation replaces the first occurrence of OldText with NewText.
type EditOperation struct {
	OldText string `json:"oldText"`
	NewText string `json:"newText"`
}

// EditResult is the result of fs/edit_file.
type EditResult struct {
	Diff    string `json:"diff"`
	Applied bool   `json:"applied"`
}

// MoveFileArgs is the params of fs/move_file.
type MoveFileArgs struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

// SearchFilesArgs is the params of fs/search_files.
type SearchFilesArgs struct {
	Path    string   `json:"path"`
	Pattern string   `json:"pattern"`
	Exclude []string `json:"excludePatterns"`
}

// Entry is a file or directory in listings and trees. Children is only set by fs/directory_tree.
type Entry struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Children []Entry `json:"children,omitempty"`
}

// FileInfo is the result of fs/get_file_info.
type FileInfo struct {
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
	Modified    time.Time `json:"modified"`
	IsDirectory bool      `json:"isDirectory"`
	IsFile      bool      `json:"isFile"`
	Permissions string    `json:"permissions"`
}

const (
	entryTypeFile      = "file"
	entryTypeDirectory = "directory"
)

var pathSchema = jsonschema.Must(`{
  "type": "object",
  "properties": {
    "path": { "type": "string", "minLength": 1 }
  },
  "required": ["path"]
}`)

var pathsSchema = jsonschema.Must(`{
  "type": "object",
  "properties": {
    "paths": {
      "type": "array",
      "items": { "type": "string" }
    }
  },
  "required": ["paths"]
}`)

var writeFileSchema = jsonschema.Must(`{
  "type": "object",
  "properties": {
    "path": { "type": "string", "minLength": 1 },
    "content": { "type": "string" }
  },
  "required": ["path", "content"]
}`)

var editFileSchema = jsonschema.Must(`{
  "type": "object",
  "properties": {
    "path": { "type": "string", "minLength": 1 },
    "edits": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "oldText": { "type": "string" },
          "newText": { "type": "string" }
        },
        "required": ["oldText", "newText"]
      }
    },
    "dryRun": { "type": "boolean" }
  },
  "required": ["path", "edits"]
}`)

var moveFileSchema = jsonschema.Must(`{
  "type": "object",
  "properties": {
    "source": { "type": "string", "minLength": 1 },
    "destination": { "type": "string", "minLength": 1 }
  },
  "required": ["source", "destination"]
}`)

var searchFilesSchema = jsonschema.Must(`{
  "type": "object",
  "properties": {
    "path": { "type": "string", "minLength": 1 },
    "pattern": { "type": "string" },
    "excludePatterns": {
      "type": "array",
      "items": { "type": "string" }
    }
  },
  "required": ["path", "pattern"]
}`)
