package ledger

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

//go:embed chart_default.yaml
var defaultChartYAML []byte

// ChartTemplate is a chart of accounts that can be seeded into a tenant.
type ChartTemplate struct {
	Accounts []ChartAccount `yaml:"accounts"`
}

// ChartAccount is one account of a ChartTemplate. Parent refers to another
// template account by code.
type ChartAccount struct {
	Code     string           `yaml:"code"`
	Name     string           `yaml:"name"`
	Type     AccountType      `yaml:"type"`
	SubType  SubType          `yaml:"subType"`
	Parent   string           `yaml:"parent"`
	System   bool             `yaml:"system"`
	CashFlow CashFlowCategory `yaml:"cashFlow"`
}

// DefaultChart returns the built-in chart template.
func DefaultChart() *ChartTemplate {
	chart, err := LoadChart(bytes.NewReader(defaultChartYAML))
	if err != nil {
		panic(fmt.Sprintf("embedded chart is invalid: %v", err))
	}
	return chart
}

// LoadChart parses and validates a YAML chart template.
func LoadChart(r io.Reader) (*ChartTemplate, error) {
	var chart ChartTemplate
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&chart); err != nil {
		return nil, validationf("parse chart template: %v", err)
	}
	if err := chart.Validate(); err != nil {
		return nil, err
	}
	return &chart, nil
}

// Validate checks codes are unique, types and subtypes agree, and every
// parent is defined earlier in the template.
func (c *ChartTemplate) Validate() error {
	seen := make(map[string]bool, len(c.Accounts))
	for _, a := range c.Accounts {
		if a.Code == "" || a.Name == "" {
			return validationf("chart account requires code and name")
		}
		if seen[a.Code] {
			return validationf("chart account code %s is defined twice", a.Code)
		}
		if !a.Type.Valid() {
			return validationf("chart account %s has invalid type %q", a.Code, a.Type)
		}
		if !a.SubType.BelongsTo(a.Type) {
			return validationf("chart account %s: subtype %s does not belong to %s", a.Code, a.SubType, a.Type)
		}
		if !a.CashFlow.Valid() {
			return validationf("chart account %s has invalid cash flow category %q", a.Code, a.CashFlow)
		}
		if a.Parent != "" && !seen[a.Parent] {
			return validationf("chart account %s: parent %s must be defined before it", a.Code, a.Parent)
		}
		seen[a.Code] = true
	}
	return nil
}
