// Package catalog stores named request templates and resolves them, with
// concrete parameters, into executable request descriptors.
package catalog

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/cozyreq/cozyreq/internal/db"
	"github.com/cozyreq/cozyreq/internal/models"
)

// Catalog manages request templates and their revision history.
type Catalog struct {
	database *db.DB
}

// New creates a catalog backed by the given database.
func New(database *db.DB) *Catalog {
	return &Catalog{database: database}
}

// Create validates a template spec and stores it as revision 1.
func (c *Catalog) Create(spec models.TemplateSpec) (*models.RequestTemplate, error) {
	if err := validateSpec(spec); err != nil {
		return nil, err
	}

	tmpl := &models.RequestTemplate{
		ID:           uuid.NewString(),
		Revision:     1,
		Name:         spec.Name,
		Method:       spec.Method,
		URLPattern:   spec.URLPattern,
		Headers:      spec.Headers,
		BodyTemplate: spec.BodyTemplate,
		Parameters:   spec.Parameters,
		CreatedAt:    time.Now(),
	}

	if err := c.database.InsertTemplate(tmpl); err != nil {
		return nil, fmt.Errorf("failed to store template: %w", err)
	}
	return tmpl, nil
}

// Edit stores a new revision of an existing template. Earlier revisions are
// retained; invocations that referenced them stay reproducible.
func (c *Catalog) Edit(id string, spec models.TemplateSpec) (*models.RequestTemplate, error) {
	if err := validateSpec(spec); err != nil {
		return nil, err
	}

	latest, err := c.database.LatestTemplateRevision(id)
	if err != nil {
		return nil, err
	}
	if latest == 0 {
		return nil, models.ErrNotFound
	}

	tmpl := &models.RequestTemplate{
		ID:           id,
		Revision:     latest + 1,
		Name:         spec.Name,
		Method:       spec.Method,
		URLPattern:   spec.URLPattern,
		Headers:      spec.Headers,
		BodyTemplate: spec.BodyTemplate,
		Parameters:   spec.Parameters,
		CreatedAt:    time.Now(),
	}

	if err := c.database.InsertTemplate(tmpl); err != nil {
		return nil, fmt.Errorf("failed to store template revision: %w", err)
	}
	return tmpl, nil
}

// Get returns the latest revision of a template.
func (c *Catalog) Get(id string) (*models.RequestTemplate, error) {
	return c.database.GetTemplate(id)
}

// GetRevision returns one specific revision of a template.
func (c *Catalog) GetRevision(id string, revision int) (*models.RequestTemplate, error) {
	return c.database.GetTemplateRevision(id, revision)
}

// List returns the latest revision of every template.
func (c *Catalog) List() ([]models.RequestTemplate, error) {
	return c.database.ListTemplates()
}

// Resolve loads the latest revision of a template and substitutes the given
// parameters into it. No network I/O happens here.
func (c *Catalog) Resolve(id string, params map[string]any) (*models.ResolvedRequest, error) {
	tmpl, err := c.database.GetTemplate(id)
	if err != nil {
		return nil, err
	}
	return Resolve(tmpl, params)
}

// History returns the time-ordered invocation history of a template. Each
// call re-reads the append-only log from the start.
func (c *Catalog) History(id string) ([]models.Invocation, error) {
	return c.database.ListInvocationsByTemplate(id)
}

// Stats aggregates the invocation history of a template by status.
func (c *Catalog) Stats(id string) (*models.TemplateStats, error) {
	return c.database.GetTemplateStats(id)
}

// validateSpec checks that a template spec is internally consistent: a known
// method, valid parameter declarations, and no unbound placeholders.
func validateSpec(spec models.TemplateSpec) error {
	if spec.Name == "" {
		return &models.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if !validMethod(spec.Method) {
		return &models.ValidationError{Field: "method", Reason: fmt.Sprintf("unknown HTTP method %q", spec.Method)}
	}

	declared := make(map[string]bool, len(spec.Parameters))
	for _, p := range spec.Parameters {
		if p.Name == "" {
			return &models.ValidationError{Field: "parameters", Reason: "parameter name must not be empty"}
		}
		if !p.Kind.Known() {
			return &models.ValidationError{
				Field:  p.Name,
				Reason: fmt.Sprintf("unknown parameter kind %q", p.Kind),
			}
		}
		if declared[p.Name] {
			return &models.ValidationError{Field: p.Name, Reason: "parameter declared twice"}
		}
		declared[p.Name] = true
	}

	for _, name := range placeholders(spec.URLPattern, spec.BodyTemplate, spec.Headers) {
		if !declared[name] {
			return &models.ValidationError{
				Field:  name,
				Reason: "placeholder has no declared parameter",
				Err:    models.ErrUnboundPlaceholder,
			}
		}
	}
	return nil
}

func validMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete,
		http.MethodPatch, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
