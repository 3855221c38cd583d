// Package openapi imports endpoint definitions from OpenAPI 3.x documents
// so they can be saved as request templates.
package openapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cozyreq/cozyreq/internal/models"
)

// Document is the subset of an OpenAPI description we import from.
type Document struct {
	OpenAPI string          `json:"openapi" yaml:"openapi"`
	Swagger string          `json:"swagger" yaml:"swagger"`
	Info    Info            `json:"info" yaml:"info"`
	Servers []Server        `json:"servers" yaml:"servers"`
	Paths   map[string]Path `json:"paths" yaml:"paths"`
}

// Info carries the document title.
type Info struct {
	Title string `json:"title" yaml:"title"`
}

// Server is a server entry; the first one supplies the base URL.
type Server struct {
	URL string `json:"url" yaml:"url"`
}

// Path maps lowercase HTTP methods to operations. Path items may carry
// non-method fields (summary, description, servers, shared parameters);
// those are skipped on decode so only operations remain.
type Path map[string]Operation

// UnmarshalJSON keeps only the known method keys of a path item.
func (p *Path) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Path, len(raw))
	for key, value := range raw {
		if _, ok := importMethods[strings.ToLower(key)]; !ok {
			continue
		}
		var op Operation
		if err := json.Unmarshal(value, &op); err != nil {
			return fmt.Errorf("invalid %s operation: %w", key, err)
		}
		out[key] = op
	}
	*p = out
	return nil
}

// UnmarshalYAML keeps only the known method keys of a path item.
func (p *Path) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("path item must be a mapping, got %s", value.Tag)
	}
	out := make(Path)
	for i := 0; i+1 < len(value.Content); i += 2 {
		key := value.Content[i].Value
		if _, ok := importMethods[strings.ToLower(key)]; !ok {
			continue
		}
		var op Operation
		if err := value.Content[i+1].Decode(&op); err != nil {
			return fmt.Errorf("invalid %s operation: %w", key, err)
		}
		out[key] = op
	}
	*p = out
	return nil
}

// Operation is a single method on a path.
type Operation struct {
	OperationID string `json:"operationId" yaml:"operationId"`
	Summary     string `json:"summary" yaml:"summary"`
}

// Endpoint is one importable method+path pair.
type Endpoint struct {
	Method  string
	Path    string
	Name    string
	BaseURL string
}

var importMethods = map[string]string{
	"get":     http.MethodGet,
	"post":    http.MethodPost,
	"put":     http.MethodPut,
	"delete":  http.MethodDelete,
	"patch":   http.MethodPatch,
	"head":    http.MethodHead,
	"options": http.MethodOptions,
}

// Load reads an OpenAPI document from a local path or an http(s) URL and
// parses it as JSON or YAML. Swagger 2.0 documents are rejected.
func Load(source string) (*Document, error) {
	data, err := read(source)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes an OpenAPI document from raw bytes, trying JSON first and
// falling back to YAML.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		if yamlErr := yaml.Unmarshal(data, &doc); yamlErr != nil {
			return nil, fmt.Errorf("document is neither valid JSON nor YAML: %w", yamlErr)
		}
	}

	if doc.Swagger != "" {
		return nil, fmt.Errorf("swagger %s documents are not supported, convert to OpenAPI 3.x first", doc.Swagger)
	}
	if !strings.HasPrefix(doc.OpenAPI, "3.") {
		return nil, fmt.Errorf("unsupported openapi version %q", doc.OpenAPI)
	}
	if len(doc.Paths) == 0 {
		return nil, fmt.Errorf("document declares no paths")
	}
	return &doc, nil
}

// Endpoints returns the document's importable endpoints sorted by path then
// method.
func (d *Document) Endpoints() []Endpoint {
	var base string
	if len(d.Servers) > 0 {
		base = strings.TrimSuffix(d.Servers[0].URL, "/")
	}

	var endpoints []Endpoint
	for path, ops := range d.Paths {
		for method, op := range ops {
			httpMethod, ok := importMethods[strings.ToLower(method)]
			if !ok {
				continue
			}
			name := op.OperationID
			if name == "" {
				name = fmt.Sprintf("%s %s", httpMethod, path)
			}
			endpoints = append(endpoints, Endpoint{
				Method:  httpMethod,
				Path:    path,
				Name:    name,
				BaseURL: base,
			})
		}
	}

	sort.Slice(endpoints, func(i, j int) bool {
		if endpoints[i].Path != endpoints[j].Path {
			return endpoints[i].Path < endpoints[j].Path
		}
		return endpoints[i].Method < endpoints[j].Method
	})
	return endpoints
}

// TemplateSpecs converts endpoints into template specs. Path parameters
// become required string parameters bound to same-named placeholders.
func (d *Document) TemplateSpecs() []models.TemplateSpec {
	endpoints := d.Endpoints()
	specs := make([]models.TemplateSpec, 0, len(endpoints))
	for _, ep := range endpoints {
		specs = append(specs, models.TemplateSpec{
			Name:       ep.Name,
			Method:     ep.Method,
			URLPattern: ep.BaseURL + ep.Path,
			Parameters: pathParameters(ep.Path),
		})
	}
	return specs
}

// pathParameters extracts {name} segments from a path.
func pathParameters(path string) []models.Parameter {
	var params []models.Parameter
	for _, segment := range strings.Split(path, "/") {
		if len(segment) > 2 && segment[0] == '{' && segment[len(segment)-1] == '}' {
			params = append(params, models.Parameter{
				Name:     segment[1 : len(segment)-1],
				Kind:     models.ParamString,
				Required: true,
			})
		}
	}
	return params
}

// read fetches the document bytes from a URL or the filesystem.
func read(source string) ([]byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		client := &http.Client{Timeout: 30 * time.Second}
		resp, err := client.Get(source)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch document: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("failed to fetch document (status %d)", resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return data, nil
}
