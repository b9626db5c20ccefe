package everything

import (
	"encoding/json"

	"github.com/qri-io/jsonschema"
)

// EchoArgs is the params of the echo capability.
type EchoArgs struct {
	Message string `json:"message"`
}

// EchoResult is the result of the echo capability.
type EchoResult struct {
	Message string `json:"message"`
}

// AddArgs is the params of the add capability.
type AddArgs struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

// AddResult is the result of the add capability.
type AddResult struct {
	Sum float64 `json:"sum"`
}

// UpperArgs is the params of the upper capability.
type UpperArgs struct {
	Text string `json:"text"`
}

// SleepArgs is the params of the sleep capability. Duration is in milliseconds and is split evenly
// across Steps.
type SleepArgs struct {
	Duration float64 `json:"duration"`
	Steps    int     `json:"steps"`
}

// SleepResult is the result of the sleep capability.
type SleepResult struct {
	Duration float64 `json:"duration"`
	Steps    int     `json:"steps"`
}

// FailArgs is the params of the fail capability.
type FailArgs struct {
	Message string `json:"message"`
}

// DiffArgs is the params of the diff capability.
type DiffArgs struct {
	Name     string `json:"name"`
	Original string `json:"original"`
	Modified string `json:"modified"`
}

// DiffResult is the result of the diff capability.
type DiffResult struct {
	Diff    string `json:"diff"`
	Changed bool   `json:"changed"`
}

// EnvArgs is the params of the env capability.
type EnvArgs struct {
	Prefix string `json:"prefix"`
}

// PatchArgs is the params of the patch capability. Patch is an RFC 6902 operation list, or an
// RFC 7386 merge document when Merge is set.
type PatchArgs struct {
	Document json.RawMessage `json:"document"`
	Patch    json.RawMessage `json:"patch"`
	Merge    bool            `json:"merge"`
}

var echoSchema = jsonschema.Must(`{
  "type": "object",
  "properties": {
    "message": { "type": "string" }
  },
  "required": ["message"]
}`)

var addSchema = jsonschema.Must(`{
  "type": "object",
  "properties": {
    "a": { "type": "number" },
    "b": { "type": "number" }
  },
  "required": ["a", "b"]
}`)

var upperSchema = jsonschema.Must(`{
  "type": "object",
  "properties": {
    "text": { "type": "string" }
  },
  "required": ["text"]
}`)

var sleepSchema = jsonschema.Must(`{
  "type": "object",
  "properties": {
    "duration": { "type": "number", "minimum": 0 },
    "steps": { "type": "integer", "minimum": 1 }
  },
  "required": ["duration"]
}`)

var diffSchema = jsonschema.Must(`{
  "type": "object",
  "properties": {
    "name": { "type": "string" },
    "original": { "type": "string" },
    "modified": { "type": "string" }
  },
  "required": ["original", "modified"]
}`)

var patchSchema = jsonschema.Must(`{
  "type": "object",
  "properties": {
    "document": {},
    "patch": {},
    "merge": { "type": "boolean" }
  },
  "required": ["document", "patch"]
}`)

var readResourceSchema = jsonschema.Must(`{
  "type": "object",
  "properties": {
    "uri": { "type": "string" }
  },
  "required": ["uri"]
}`)

var completeSchema = jsonschema.Must(`{
  "type": "object",
  "properties": {
    "argument": { "type": "string" },
    "value": { "type": "string" }
  },
  "required": ["argument"]
}`)
