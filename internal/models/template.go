package models

import "time"

// ParamKind is the declared primitive type of a template parameter.
type ParamKind string

const (
	ParamString ParamKind = "string"
	ParamNumber ParamKind = "number"
	ParamBool   ParamKind = "bool"
)

// Known reports whether the kind is one of the supported primitives.
func (k ParamKind) Known() bool {
	switch k {
	case ParamString, ParamNumber, ParamBool:
		return true
	}
	return false
}

// Parameter declares a single substitutable value in a request template.
type Parameter struct {
	Name        string    `json:"name"`
	Kind        ParamKind `json:"kind"`
	Required    bool      `json:"required"`
	Description string    `json:"description,omitempty"`
}

// TemplateSpec is the caller-supplied definition used to create or edit a
// template.
type TemplateSpec struct {
	Name         string
	Method       string
	URLPattern   string
	Headers      map[string]string
	BodyTemplate string
	Parameters   []Parameter
}

// RequestTemplate is a stored, versioned request definition. A revision is
// immutable once written; edits create the next revision.
type RequestTemplate struct {
	ID           string
	Revision     int
	Name         string
	Method       string
	URLPattern   string
	Headers      map[string]string
	BodyTemplate string
	Parameters   []Parameter
	CreatedAt    time.Time
}

// ResolvedRequest is the concrete request produced by substituting
// parameters into a template revision. It is stored verbatim with the
// invocation so the audit trail survives later template edits.
type ResolvedRequest struct {
	TemplateID       string            `json:"template_id"`
	TemplateRevision int               `json:"template_revision"`
	Method           string            `json:"method"`
	URL              string            `json:"url"`
	Headers          map[string]string `json:"headers,omitempty"`
	Body             string            `json:"body,omitempty"`
}
