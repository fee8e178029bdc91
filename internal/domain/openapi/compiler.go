// Package openapi compiles an OpenAPI v3 document into a tool manifest and
// a set of RouteMeta bindings. Operation-id synthesis and parameter/schema
// collection follow the same shape as the Rust gateway's openapi compiler;
// parsing uses kin-openapi.
package openapi

import (
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/resource"
)

// httpMethods is the set of operations iterated per path, in a fixed order
// so compilation is deterministic.
var httpMethods = []string{"get", "post", "put", "patch", "delete", "head", "options"}

// actionVerbs maps an HTTP method to the verb used when synthesizing an
// operation id.
var actionVerbs = map[string]string{
	"post":  "create",
	"put":   "update",
	"get":   "get",
	"delete": "delete",
	"patch": "patch",
	"head":  "head",
	"options": "options",
}

// Tool is one entry of the manifest returned by tools/list.
type Tool struct {
	Name        string                     `json:"name"`
	Description string                     `json:"description,omitempty"`
	InputSchema *resource.ToolInputSchema  `json:"inputSchema"`
}

// Result is the output of compiling one OpenAPI document.
type Result struct {
	Tools []Tool
	Metas []*resource.RouteMeta
}

// Compile parses doc (raw OpenAPI v3 JSON) and builds tools + RouteMeta
// bindings, every one bound to defaultUpstreamID and carrying
// defaultHeaders. Scoping the result (global or per tenant) is left to the
// caller.
func Compile(doc []byte, defaultUpstreamID string, defaultHeaders map[string]string) (*Result, error) {
	loader := openapi3.NewLoader()
	spec, err := loader.LoadFromData(doc)
	if err != nil {
		return nil, fmt.Errorf("openapi: parse failed: %w", err)
	}

	res := &Result{}
	seen := make(map[string]bool)

	paths := spec.Paths.Map()
	pathKeys := make([]string, 0, len(paths))
	for p := range paths {
		pathKeys = append(pathKeys, p)
	}
	sort.Strings(pathKeys)

	for _, path := range pathKeys {
		item := paths[path]
		for _, method := range httpMethods {
			op := operationFor(item, method)
			if op == nil {
				continue
			}

			opID := op.OperationID
			if opID == "" {
				opID = synthesizeOperationID(method, path)
			}
			if seen[opID] {
				// Invariant: on collision the first wins, subsequent ops rejected.
				continue
			}
			seen[opID] = true

			schema := collectSchema(op, path)
			headers := defaultHeaders

			meta := &resource.RouteMeta{
				OperationID: opID,
				Method:      strings.ToUpper(method),
				URITemplate: path,
				UpstreamID:  defaultUpstreamID,
				Headers:     headers,
				Kind:        resource.RouteMetaTool,
				Schema:      schema,
				Description: op.Description,
			}
			res.Metas = append(res.Metas, meta)
			res.Tools = append(res.Tools, Tool{
				Name:        opID,
				Description: op.Description,
				InputSchema: schema,
			})
		}
	}

	return res, nil
}

func operationFor(item *openapi3.PathItem, method string) *openapi3.Operation {
	switch method {
	case "get":
		return item.Get
	case "post":
		return item.Post
	case "put":
		return item.Put
	case "patch":
		return item.Patch
	case "delete":
		return item.Delete
	case "head":
		return item.Head
	case "options":
		return item.Options
	default:
		return nil
	}
}

// synthesizeOperationID builds "{action}_{segments}" with path params {x}
// rendered as "by_x".
func synthesizeOperationID(method, path string) string {
	action := actionVerbs[method]
	if action == "" {
		action = method
	}
	segments := strings.Split(strings.Trim(path, "/"), "/")
	var parts []string
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			parts = append(parts, "by_"+strings.Trim(seg, "{}"))
		} else {
			parts = append(parts, seg)
		}
	}
	return action + "_" + strings.Join(parts, "_")
}

// collectSchema gathers parameters (path/query/header/cookie) and inlined
// or $ref-resolved request-body properties into one flat ToolInputSchema.
// $ref resolution is restricted to #/components/schemas.
func collectSchema(op *openapi3.Operation, path string) *resource.ToolInputSchema {
	schema := &resource.ToolInputSchema{
		Type:       "object",
		Properties: make(map[string]*resource.SchemaProperty),
	}

	for _, paramRef := range op.Parameters {
		param := paramRef.Value
		if param == nil {
			continue
		}
		prop := &resource.SchemaProperty{Type: "string", In: param.In}
		if param.Schema != nil && param.Schema.Value != nil {
			prop.Type = schemaType(param.Schema.Value)
		}
		schema.Properties[param.Name] = prop

		// Path parameters are forced required.
		if param.In == "path" || param.Required {
			schema.Required = append(schema.Required, param.Name)
		}
	}

	if op.RequestBody != nil && op.RequestBody.Value != nil {
		body := op.RequestBody.Value
		media := body.Content.Get("application/json")
		if media != nil && media.Schema != nil && media.Schema.Value != nil {
			bodySchema := media.Schema.Value
			for name, propRef := range bodySchema.Properties {
				if propRef.Value == nil {
					continue
				}
				schema.Properties[name] = &resource.SchemaProperty{
					Type:   schemaType(propRef.Value),
					Format: propRef.Value.Format,
					Title:  propRef.Value.Title,
					In:     "body",
				}
			}
			if body.Required {
				schema.Required = append(schema.Required, bodySchema.Required...)
			}
		}
	}

	sort.Strings(schema.Required)
	return schema
}

// schemaType returns the first declared JSON type of a schema, defaulting
// to "string". kin-openapi represents Schema.Type as a *Types (string set)
// in current releases; Slice() yields it as a string slice.
func schemaType(s *openapi3.Schema) string {
	if s.Type == nil {
		return "string"
	}
	types := s.Type.Slice()
	if len(types) == 0 {
		return "string"
	}
	return types[0]
}
