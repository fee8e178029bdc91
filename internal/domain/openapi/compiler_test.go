package openapi

import "testing"

const sampleDoc = `{
  "openapi": "3.0.0",
  "info": {"title": "users", "version": "1.0"},
  "paths": {
    "/users/{id}": {
      "get": {
        "operationId": "get_user",
        "parameters": [
          {"name": "id", "in": "path", "required": true, "schema": {"type": "string"}}
        ],
        "responses": {"200": {"description": "ok"}}
      }
    },
    "/users": {
      "post": {
        "requestBody": {
          "required": true,
          "content": {
            "application/json": {
              "schema": {
                "type": "object",
                "required": ["name"],
                "properties": {"name": {"type": "string"}}
              }
            }
          }
        },
        "responses": {"200": {"description": "ok"}}
      }
    }
  }
}`

func TestCompileOperationIDFromDocument(t *testing.T) {
	result, err := Compile([]byte(sampleDoc), "u1", nil)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	var getUser *Tool
	for i := range result.Tools {
		if result.Tools[i].Name == "get_user" {
			getUser = &result.Tools[i]
		}
	}
	if getUser == nil {
		t.Fatalf("expected tool %q in %+v", "get_user", result.Tools)
	}
	if _, ok := getUser.InputSchema.Properties["id"]; !ok {
		t.Fatalf("get_user schema missing path param %q", "id")
	}
}

func TestCompileSynthesizesOperationID(t *testing.T) {
	result, err := Compile([]byte(sampleDoc), "u1", nil)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	var created bool
	for _, m := range result.Metas {
		if m.OperationID == "create_users" {
			created = true
		}
	}
	if !created {
		t.Fatalf("expected synthesized operation id %q in %+v", "create_users", result.Metas)
	}
}

func TestCompileIsDeterministic(t *testing.T) {
	a, err := Compile([]byte(sampleDoc), "u1", nil)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	b, err := Compile([]byte(sampleDoc), "u1", nil)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if len(a.Tools) != len(b.Tools) || len(a.Metas) != len(b.Metas) {
		t.Fatalf("two compilations of the same document produced different counts")
	}
}
