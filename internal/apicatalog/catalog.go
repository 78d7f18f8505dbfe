// Package apicatalog reads the backend's OpenAPI document and exposes the
// endpoints the transport needs: method, path template, accepted content
// type and security requirements per operationId.
package apicatalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// Endpoint is one operation of the API.
type Endpoint struct {
	OperationID string
	Method      string
	Path        string
	Summary     string
	ContentType string
	// Security lists the scheme names required by the operation. Any one
	// requirement set must be satisfied; schemes inside a set are combined.
	Security [][]string
}

// Expand substitutes `{name}` path parameters.
func (e Endpoint) Expand(params map[string]string) (string, error) {
	path := e.Path
	for name, value := range params {
		path = strings.ReplaceAll(path, "{"+name+"}", value)
	}
	if strings.ContainsAny(path, "{}") {
		return "", fmt.Errorf("apicatalog: unresolved path parameters in %s", path)
	}
	return path, nil
}

// APIKey describes an apiKey security scheme.
type APIKey struct {
	Scheme string
	In     string
	Name   string
}

// Catalog is the parsed API surface.
type Catalog struct {
	Title     string
	Servers   []string
	endpoints map[string]Endpoint
	apiKeys   map[string]APIKey
	bearer    map[string]bool
}

// Load parses and validates raw (YAML or JSON).
func Load(ctx context.Context, raw []byte) (*Catalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, errors.New("apicatalog: document payload is empty")
	}

	loader := &openapi3.Loader{Context: ctx}
	spec, err := loader.LoadFromData(raw)
	if err != nil {
		return nil, fmt.Errorf("apicatalog: load document: %w", err)
	}
	if err := spec.Validate(ctx, openapi3.DisableExamplesValidation()); err != nil {
		return nil, fmt.Errorf("apicatalog: validate: %w", err)
	}
	if spec.Paths == nil || spec.Paths.Len() == 0 {
		return nil, errors.New("apicatalog: document does not contain any paths")
	}

	catalog := &Catalog{
		endpoints: make(map[string]Endpoint),
		apiKeys:   make(map[string]APIKey),
		bearer:    make(map[string]bool),
	}
	if spec.Info != nil {
		catalog.Title = spec.Info.Title
	}
	for _, server := range spec.Servers {
		if server != nil && server.URL != "" {
			catalog.Servers = append(catalog.Servers, server.URL)
		}
	}
	if spec.Components != nil {
		for name, ref := range spec.Components.SecuritySchemes {
			if ref == nil || ref.Value == nil {
				continue
			}
			scheme := ref.Value
			switch {
			case scheme.Type == "apiKey":
				catalog.apiKeys[name] = APIKey{Scheme: name, In: scheme.In, Name: scheme.Name}
			case scheme.Type == "http" && strings.EqualFold(scheme.Scheme, "bearer"):
				catalog.bearer[name] = true
			}
		}
	}

	for path, item := range spec.Paths.Map() {
		if item == nil {
			continue
		}
		for method, operation := range item.Operations() {
			catalog.collect(spec, strings.ToUpper(method), path, operation)
		}
	}
	if len(catalog.endpoints) == 0 {
		return nil, errors.New("apicatalog: no operations extracted")
	}
	return catalog, nil
}

func (c *Catalog) collect(spec *openapi3.T, method, path string, operation *openapi3.Operation) {
	if operation == nil {
		return
	}
	opID := operation.OperationID
	if opID == "" {
		opID = strings.ToLower(method) + ":" + path
	}

	endpoint := Endpoint{
		OperationID: opID,
		Method:      method,
		Path:        path,
		Summary:     operation.Summary,
		ContentType: requestContentType(operation.RequestBody),
	}

	requirements := spec.Security
	if operation.Security != nil {
		requirements = *operation.Security
	}
	for _, requirement := range requirements {
		set := make([]string, 0, len(requirement))
		for name := range requirement {
			set = append(set, name)
		}
		sort.Strings(set)
		endpoint.Security = append(endpoint.Security, set)
	}
	c.endpoints[opID] = endpoint
}

func requestContentType(body *openapi3.RequestBodyRef) string {
	if body == nil || body.Value == nil {
		return ""
	}
	for _, mediaType := range []string{"multipart/form-data", "application/x-www-form-urlencoded", "application/json"} {
		if _, ok := body.Value.Content[mediaType]; ok {
			return mediaType
		}
	}
	return ""
}

// Endpoint returns the operation with the given id.
func (c *Catalog) Endpoint(operationID string) (Endpoint, error) {
	endpoint, ok := c.endpoints[operationID]
	if !ok {
		return Endpoint{}, fmt.Errorf("apicatalog: unknown operation %q", operationID)
	}
	return endpoint, nil
}

// Operations lists operation ids in lexical order.
func (c *Catalog) Operations() []string {
	out := make([]string, 0, len(c.endpoints))
	for id := range c.endpoints {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// AuthFor splits the schemes of an endpoint into the apiKey headers it needs
// and whether it needs a bearer token.
func (c *Catalog) AuthFor(endpoint Endpoint) (headers []APIKey, bearer bool) {
	seen := make(map[string]bool)
	for _, set := range endpoint.Security {
		for _, name := range set {
			if seen[name] {
				continue
			}
			seen[name] = true
			if key, ok := c.apiKeys[name]; ok && key.In == "header" {
				headers = append(headers, key)
			}
			if c.bearer[name] {
				bearer = true
			}
		}
	}
	return headers, bearer
}

// MethodAllowsBody reports whether method carries a request body.
func MethodAllowsBody(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodDelete, http.MethodOptions:
		return false
	default:
		return true
	}
}
