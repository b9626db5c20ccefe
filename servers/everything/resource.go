package everything

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/MegaGrindStone/go-jsonrpc"
)

const (
	resourceCount  = 100
	pageSize       = 10
	resourcePrefix = "test://static/resource/"
)

// Resource describes one of the static resources.
type Resource struct {
	URI      string `json:"uri"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
}

// ResourceContents holds the content of a resource: Text for text resources, base64 encoded Blob
// for binary ones.
type ResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// ResourceTemplate describes a family of resources addressed by a URI template.
type ResourceTemplate struct {
	URITemplate string `json:"uriTemplate"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ListResourcesArgs selects a page of resources. An empty Cursor selects the first page.
type ListResourcesArgs struct {
	Cursor string `json:"cursor,omitempty"`
}

// ListResourcesResult is one page of resources. NextCursor is empty on the last page.
type ListResourcesResult struct {
	Resources  []Resource `json:"resources"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

// ReadResourceArgs names the resource to read.
type ReadResourceArgs struct {
	URI string `json:"uri"`
}

// CompleteArgs asks for the values of a template argument starting with Value.
type CompleteArgs struct {
	Argument string `json:"argument"`
	Value    string `json:"value"`
}

var resourceCompletions = map[string][]string{
	"resourceId": {"1", "2", "3", "4", "5"},
}

// resource returns the descriptor and content of the i-th resource, counted from 1. Odd
// resources are plain text, even ones binary.
func resource(i int) (Resource, ResourceContents) {
	uri := resourcePrefix + strconv.Itoa(i)
	r := Resource{URI: uri, Name: fmt.Sprintf("Resource %d", i)}
	c := ResourceContents{URI: uri}
	if i%2 == 1 {
		r.MimeType = "text/plain"
		c.Text = fmt.Sprintf("Resource %d: This is a plain text resource", i)
	} else {
		r.MimeType = "application/octet-stream"
		c.Blob = base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("Resource %d: This is a base64 blob", i)))
	}
	c.MimeType = r.MimeType
	return r, c
}

func (s Server) listResources(_ context.Context, args ListResourcesArgs) (ListResourcesResult, error) {
	start := 0
	if args.Cursor != "" {
		n, err := strconv.Atoi(args.Cursor)
		if err != nil || n < 0 || n >= resourceCount {
			return ListResourcesResult{}, jsonrpc.InvalidParamsError(fmt.Sprintf("invalid cursor %q", args.Cursor), err)
		}
		start = n
	}
	end := min(start+pageSize, resourceCount)

	result := ListResourcesResult{Resources: make([]Resource, 0, end-start)}
	for i := start; i < end; i++ {
		r, _ := resource(i + 1)
		result.Resources = append(result.Resources, r)
	}
	if end < resourceCount {
		result.NextCursor = strconv.Itoa(end)
	}

	s.logger.Debug("listed resources",
		slog.String("cursor", args.Cursor),
		slog.Int("count", len(result.Resources)))
	return result, nil
}

func (s Server) readResource(_ context.Context, args ReadResourceArgs) (ResourceContents, error) {
	id, ok := strings.CutPrefix(args.URI, resourcePrefix)
	if !ok {
		return ResourceContents{}, jsonrpc.InvalidParamsError(fmt.Sprintf("resource %s not found", args.URI), nil)
	}
	i, err := strconv.Atoi(id)
	if err != nil || i < 1 || i > resourceCount {
		return ResourceContents{}, jsonrpc.InvalidParamsError(fmt.Sprintf("resource %s not found", args.URI), nil)
	}

	_, c := resource(i)
	return c, nil
}

func (s Server) resourceTemplates(context.Context, struct{}) ([]ResourceTemplate, error) {
	return []ResourceTemplate{
		{
			URITemplate: resourcePrefix + "{resourceId}",
			Name:        "Static Resource",
			Description: "A static resource with a numeric ID",
		},
	}, nil
}

// complete returns the known values of a template argument with the given prefix.
func (s Server) complete(_ context.Context, args CompleteArgs) ([]string, error) {
	values := []string{}
	for _, v := range resourceCompletions[args.Argument] {
		if strings.HasPrefix(v, args.Value) {
			values = append(values, v)
		}
	}
	return values, nil
}
