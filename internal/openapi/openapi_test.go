package openapi

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleJSON = `{
  "openapi": "3.0.3",
  "info": {"title": "Pet Store"},
  "servers": [{"url": "https://api.petstore.example/v1"}],
  "paths": {
    "/pets": {
      "get": {"operationId": "listPets"},
      "post": {"operationId": "createPet"}
    },
    "/pets/{petId}": {
      "get": {"operationId": "getPet"},
      "delete": {}
    }
  }
}`

const sampleYAML = `openapi: "3.1.0"
info:
  title: Pet Store
servers:
  - url: https://api.petstore.example/v1
paths:
  /pets:
    get:
      operationId: listPets
`

func TestParse_JSON(t *testing.T) {
	doc, err := Parse([]byte(sampleJSON))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if doc.Info.Title != "Pet Store" {
		t.Errorf("Expected title, got %q", doc.Info.Title)
	}
	if len(doc.Paths) != 2 {
		t.Errorf("Expected 2 paths, got %d", len(doc.Paths))
	}
}

func TestParse_YAML(t *testing.T) {
	doc, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if doc.OpenAPI != "3.1.0" {
		t.Errorf("Expected version 3.1.0, got %q", doc.OpenAPI)
	}
}

func TestParse_IgnoresPathLevelFields(t *testing.T) {
	doc, err := Parse([]byte(`{
		"openapi": "3.0.0",
		"servers": [{"url": "https://api.example.com"}],
		"paths": {
			"/users/{userId}": {
				"summary": "user ops",
				"description": "operations on a single user",
				"servers": [{"url": "https://override.example.com"}],
				"parameters": [{"name": "userId", "in": "path", "required": true}],
				"get": {"operationId": "getUser"},
				"delete": {}
			}
		}
	}`))
	if err != nil {
		t.Fatalf("Parse rejected a document with path-level fields: %v", err)
	}

	endpoints := doc.Endpoints()
	if len(endpoints) != 2 {
		t.Fatalf("Expected 2 endpoints, got %d", len(endpoints))
	}
	if endpoints[1].Name != "getUser" {
		t.Errorf("Expected getUser operation, got %q", endpoints[1].Name)
	}
}

func TestParse_IgnoresPathLevelFieldsYAML(t *testing.T) {
	doc, err := Parse([]byte(`openapi: "3.0.0"
paths:
  /pets/{petId}:
    summary: pet ops
    parameters:
      - name: petId
        in: path
        required: true
    get:
      operationId: getPet
`))
	if err != nil {
		t.Fatalf("Parse rejected a YAML document with path-level fields: %v", err)
	}
	if len(doc.Endpoints()) != 1 {
		t.Fatalf("Expected 1 endpoint, got %d", len(doc.Endpoints()))
	}
}

func TestParse_RejectsSwagger2(t *testing.T) {
	_, err := Parse([]byte(`{"swagger": "2.0", "paths": {"/x": {}}}`))
	if err == nil {
		t.Fatal("Expected error for Swagger 2.0 document")
	}
	if !strings.Contains(err.Error(), "swagger 2.0") {
		t.Errorf("Expected swagger rejection message, got %q", err)
	}
}

func TestParse_RejectsUnknownVersion(t *testing.T) {
	_, err := Parse([]byte(`{"openapi": "4.0.0", "paths": {"/x": {}}}`))
	if err == nil {
		t.Error("Expected error for unsupported version")
	}
}

func TestParse_RejectsEmptyPaths(t *testing.T) {
	_, err := Parse([]byte(`{"openapi": "3.0.0", "paths": {}}`))
	if err == nil {
		t.Error("Expected error for document without paths")
	}
}

func TestParse_RejectsGarbage(t *testing.T) {
	_, err := Parse([]byte(`{{{{not a document`))
	if err == nil {
		t.Error("Expected error for unparseable input")
	}
}

func TestEndpoints_SortedWithBaseURL(t *testing.T) {
	doc, err := Parse([]byte(sampleJSON))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	endpoints := doc.Endpoints()
	if len(endpoints) != 4 {
		t.Fatalf("Expected 4 endpoints, got %d", len(endpoints))
	}

	// Sorted by path, then method.
	want := []struct{ method, path string }{
		{"GET", "/pets"},
		{"POST", "/pets"},
		{"DELETE", "/pets/{petId}"},
		{"GET", "/pets/{petId}"},
	}
	for i, w := range want {
		if endpoints[i].Method != w.method || endpoints[i].Path != w.path {
			t.Errorf("Position %d: expected %s %s, got %s %s",
				i, w.method, w.path, endpoints[i].Method, endpoints[i].Path)
		}
	}

	if endpoints[0].BaseURL != "https://api.petstore.example/v1" {
		t.Errorf("Base URL not carried: %q", endpoints[0].BaseURL)
	}
	if endpoints[0].Name != "listPets" {
		t.Errorf("Expected operationId as name, got %q", endpoints[0].Name)
	}
	// Operation without an id falls back to method + path.
	if endpoints[2].Name != "DELETE /pets/{petId}" {
		t.Errorf("Expected fallback name, got %q", endpoints[2].Name)
	}
}

func TestTemplateSpecs_PathParameters(t *testing.T) {
	doc, err := Parse([]byte(sampleJSON))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	specs := doc.TemplateSpecs()
	if len(specs) != 4 {
		t.Fatalf("Expected 4 specs, got %d", len(specs))
	}

	getPet := -1
	for i, spec := range specs {
		if spec.Name == "getPet" {
			getPet = i
			break
		}
	}
	if getPet == -1 {
		t.Fatal("getPet spec not found")
	}

	spec := specs[getPet]
	if spec.URLPattern != "https://api.petstore.example/v1/pets/{petId}" {
		t.Errorf("Unexpected URL pattern: %q", spec.URLPattern)
	}
	if len(spec.Parameters) != 1 {
		t.Fatalf("Expected 1 parameter, got %d", len(spec.Parameters))
	}
	p := spec.Parameters[0]
	if p.Name != "petId" || !p.Required {
		t.Errorf("Expected required petId parameter, got %+v", p)
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spec.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatalf("Failed to write spec file: %v", err)
	}

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(doc.Endpoints()) != 1 {
		t.Errorf("Expected 1 endpoint, got %d", len(doc.Endpoints()))
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}
}
