package catalog

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/cozyreq/cozyreq/internal/models"
)

// placeholderRe matches {name} placeholders in URL patterns, header values,
// and body templates.
var placeholderRe = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// Resolve substitutes parameters into a template revision and returns the
// concrete request descriptor. It is a pure function: the same template and
// parameters always yield the same result.
func Resolve(tmpl *models.RequestTemplate, params map[string]any) (*models.ResolvedRequest, error) {
	if err := validateParams(tmpl.Parameters, params); err != nil {
		return nil, err
	}

	values := make(map[string]string, len(params))
	for name, v := range params {
		values[name] = formatValue(v)
	}

	resolved := &models.ResolvedRequest{
		TemplateID:       tmpl.ID,
		TemplateRevision: tmpl.Revision,
		Method:           tmpl.Method,
		URL:              substitute(tmpl.URLPattern, values),
		Body:             substitute(tmpl.BodyTemplate, values),
	}

	if len(tmpl.Headers) > 0 {
		resolved.Headers = make(map[string]string, len(tmpl.Headers))
		for k, v := range tmpl.Headers {
			resolved.Headers[k] = substitute(v, values)
		}
	}
	return resolved, nil
}

// validateParams checks supplied parameters against the declared schema using
// a compiled JSON Schema document.
func validateParams(declared []models.Parameter, params map[string]any) error {
	schema := buildSchema(declared)
	doc := params
	if doc == nil {
		doc = map[string]any{}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(doc))
	if err != nil {
		return &models.InternalError{Op: "parameter validation", Err: err}
	}
	if result.Valid() {
		return nil
	}

	for _, re := range result.Errors() {
		switch re.Type() {
		case "required":
			field, _ := re.Details()["property"].(string)
			return &models.ValidationError{
				Field:  field,
				Reason: "required parameter is missing",
				Err:    models.ErrMissingParameter,
			}
		case "invalid_type":
			return &models.ValidationError{
				Field:  re.Field(),
				Reason: re.Description(),
				Err:    models.ErrTypeMismatch,
			}
		case "additional_property_not_allowed":
			field, _ := re.Details()["property"].(string)
			return &models.ValidationError{
				Field:  field,
				Reason: "parameter is not declared by the template",
			}
		}
	}
	first := result.Errors()[0]
	return &models.ValidationError{Field: first.Field(), Reason: first.Description()}
}

// buildSchema compiles declared parameters into a JSON Schema document.
func buildSchema(declared []models.Parameter) map[string]any {
	properties := make(map[string]any, len(declared))
	var required []string
	for _, p := range declared {
		properties[p.Name] = map[string]any{"type": jsonType(p.Kind)}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	sort.Strings(required)

	schema := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func jsonType(kind models.ParamKind) string {
	switch kind {
	case models.ParamNumber:
		return "number"
	case models.ParamBool:
		return "boolean"
	default:
		return "string"
	}
}

// substitute replaces every {name} placeholder with its formatted value.
// Placeholders without a supplied value are left untouched; validation has
// already guaranteed required ones are present.
func substitute(text string, values map[string]string) string {
	if text == "" || !strings.Contains(text, "{") {
		return text
	}
	return placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		name := match[1 : len(match)-1]
		if v, ok := values[name]; ok {
			return v
		}
		return match
	})
}

// formatValue renders a parameter value for substitution.
func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// placeholders collects every distinct placeholder name used by a template,
// in first-seen order.
func placeholders(urlPattern, bodyTemplate string, headers map[string]string) []string {
	seen := make(map[string]bool)
	var names []string
	collect := func(text string) {
		for _, m := range placeholderRe.FindAllStringSubmatch(text, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				names = append(names, m[1])
			}
		}
	}
	collect(urlPattern)
	collect(bodyTemplate)

	headerKeys := make([]string, 0, len(headers))
	for k := range headers {
		headerKeys = append(headerKeys, k)
	}
	sort.Strings(headerKeys)
	for _, k := range headerKeys {
		collect(headers[k])
	}
	return names
}
