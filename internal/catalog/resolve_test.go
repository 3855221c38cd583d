package catalog

import (
	"errors"
	"testing"

	"github.com/cozyreq/cozyreq/internal/models"
)

func resolveTemplate() *models.RequestTemplate {
	return &models.RequestTemplate{
		ID:         "tmpl-1",
		Revision:   3,
		Name:       "create order",
		Method:     "POST",
		URLPattern: "https://api.example.com/shops/{shop}/orders",
		Headers: map[string]string{
			"Content-Type": "application/json",
			"X-Region":     "{region}",
		},
		BodyTemplate: `{"item":"{item}","count":{count},"rush":{rush}}`,
		Parameters: []models.Parameter{
			{Name: "shop", Kind: models.ParamString, Required: true},
			{Name: "region", Kind: models.ParamString, Required: true},
			{Name: "item", Kind: models.ParamString, Required: true},
			{Name: "count", Kind: models.ParamNumber, Required: true},
			{Name: "rush", Kind: models.ParamBool, Required: false},
		},
	}
}

func TestResolve_Substitution(t *testing.T) {
	params := map[string]any{
		"shop":   "acme",
		"region": "eu-west",
		"item":   "widget",
		"count":  3,
		"rush":   true,
	}

	resolved, err := Resolve(resolveTemplate(), params)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if resolved.URL != "https://api.example.com/shops/acme/orders" {
		t.Errorf("URL substitution failed: %q", resolved.URL)
	}
	if resolved.Headers["X-Region"] != "eu-west" {
		t.Errorf("Header substitution failed: %q", resolved.Headers["X-Region"])
	}
	if resolved.Body != `{"item":"widget","count":3,"rush":true}` {
		t.Errorf("Body substitution failed: %q", resolved.Body)
	}
	if resolved.TemplateID != "tmpl-1" || resolved.TemplateRevision != 3 {
		t.Errorf("Template identity not carried: %s rev %d", resolved.TemplateID, resolved.TemplateRevision)
	}
}

func TestResolve_Pure(t *testing.T) {
	tmpl := resolveTemplate()
	params := map[string]any{
		"shop":   "acme",
		"region": "eu-west",
		"item":   "widget",
		"count":  3,
	}

	first, err := Resolve(tmpl, params)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	second, err := Resolve(tmpl, params)
	if err != nil {
		t.Fatalf("second Resolve failed: %v", err)
	}

	if first.URL != second.URL || first.Body != second.Body {
		t.Error("Resolve is not deterministic for identical inputs")
	}
	// The template itself must be untouched.
	if tmpl.URLPattern != "https://api.example.com/shops/{shop}/orders" {
		t.Error("Resolve mutated the template")
	}
}

func TestResolve_MissingRequiredParameter(t *testing.T) {
	params := map[string]any{
		"shop":   "acme",
		"region": "eu-west",
		// item and count missing
	}

	_, err := Resolve(resolveTemplate(), params)
	if !errors.Is(err, models.ErrMissingParameter) {
		t.Fatalf("Expected ErrMissingParameter, got %v", err)
	}

	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError, got %T", err)
	}
	if verr.Field == "" {
		t.Error("Expected the missing field to be named")
	}
}

func TestResolve_TypeMismatch(t *testing.T) {
	params := map[string]any{
		"shop":   "acme",
		"region": "eu-west",
		"item":   "widget",
		"count":  "three",
	}

	_, err := Resolve(resolveTemplate(), params)
	if !errors.Is(err, models.ErrTypeMismatch) {
		t.Errorf("Expected ErrTypeMismatch, got %v", err)
	}
}

func TestResolve_UndeclaredParameter(t *testing.T) {
	params := map[string]any{
		"shop":    "acme",
		"region":  "eu-west",
		"item":    "widget",
		"count":   3,
		"mystery": "nope",
	}

	_, err := Resolve(resolveTemplate(), params)
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError for undeclared parameter, got %v", err)
	}
}

func TestResolve_OptionalParameterOmitted(t *testing.T) {
	params := map[string]any{
		"shop":   "acme",
		"region": "eu-west",
		"item":   "widget",
		"count":  3,
	}

	resolved, err := Resolve(resolveTemplate(), params)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	// The optional placeholder stays literal when no value is supplied.
	if resolved.Body != `{"item":"widget","count":3,"rush":{rush}}` {
		t.Errorf("Unexpected body: %q", resolved.Body)
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"text", "text"},
		{true, "true"},
		{false, "false"},
		{3, "3"},
		{int64(9000), "9000"},
		{3.5, "3.5"},
		{float64(7), "7"},
	}
	for _, tt := range tests {
		if got := formatValue(tt.in); got != tt.want {
			t.Errorf("formatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPlaceholders_Order(t *testing.T) {
	names := placeholders(
		"https://x/{a}/{b}",
		"{c} and {a}",
		map[string]string{"H": "{d}"},
	)
	want := []string{"a", "b", "c", "d"}
	if len(names) != len(want) {
		t.Fatalf("Expected %d names, got %d: %v", len(want), len(names), names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], names[i])
		}
	}
}
