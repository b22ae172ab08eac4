// Package filter provides keep/drop predicates applied to sanitized events
// before storage.
package filter

import (
	"fmt"
	"strings"

	"github.com/vigil-systems/vigil/audit"
)

// Filter decides whether an event is kept. The engine evaluates filters in
// configured order and short-circuits on the first drop.
type Filter interface {
	Keep(event *audit.AuditEvent) bool
	Name() string
}

// Chain is an ordered list of filters. An empty chain keeps everything.
type Chain struct {
	filters []Filter
}

// NewChain creates a filter chain.
func NewChain(filters ...Filter) *Chain {
	return &Chain{filters: filters}
}

// Keep reports whether every filter keeps the event.
func (c *Chain) Keep(event *audit.AuditEvent) bool {
	for _, f := range c.filters {
		if !f.Keep(event) {
			return false
		}
	}
	return true
}

// Len returns the number of configured filters.
func (c *Chain) Len() int { return len(c.filters) }

// ExcludeCategories drops events whose action category is in the set.
type ExcludeCategories struct {
	categories map[string]struct{}
}

// NewExcludeCategories builds the filter; category matching is
// case-insensitive.
func NewExcludeCategories(categories []string) *ExcludeCategories {
	return &ExcludeCategories{categories: upperSet(categories)}
}

func (f *ExcludeCategories) Keep(event *audit.AuditEvent) bool {
	_, excluded := f.categories[event.Action.Category]
	return !excluded
}

func (f *ExcludeCategories) Name() string { return "exclude_category" }

// IncludeCategories drops events whose action category is NOT in the set.
type IncludeCategories struct {
	categories map[string]struct{}
}

// NewIncludeCategories builds the filter; category matching is
// case-insensitive.
func NewIncludeCategories(categories []string) *IncludeCategories {
	return &IncludeCategories{categories: upperSet(categories)}
}

func (f *IncludeCategories) Keep(event *audit.AuditEvent) bool {
	_, included := f.categories[event.Action.Category]
	return included
}

func (f *IncludeCategories) Name() string { return "include_category" }

// ExcludeActionTypes drops events whose action type is in the set.
type ExcludeActionTypes struct {
	actionTypes map[string]struct{}
}

// NewExcludeActionTypes builds the filter; type matching is
// case-insensitive.
func NewExcludeActionTypes(actionTypes []string) *ExcludeActionTypes {
	return &ExcludeActionTypes{actionTypes: upperSet(actionTypes)}
}

func (f *ExcludeActionTypes) Keep(event *audit.AuditEvent) bool {
	_, excluded := f.actionTypes[event.Action.Type]
	return !excluded
}

func (f *ExcludeActionTypes) Name() string { return "exclude_action_type" }

// Spec describes one filter in configuration form.
type Spec struct {
	Type        string   `mapstructure:"type" yaml:"type"`
	Categories  []string `mapstructure:"categories" yaml:"categories,omitempty"`
	ActionTypes []string `mapstructure:"action_types" yaml:"action_types,omitempty"`
}

// FromSpecs builds a chain from configuration, preserving order. Unknown
// filter types are rejected.
func FromSpecs(specs []Spec) (*Chain, error) {
	filters := make([]Filter, 0, len(specs))
	for _, spec := range specs {
		switch spec.Type {
		case "exclude_category":
			filters = append(filters, NewExcludeCategories(spec.Categories))
		case "include_category":
			filters = append(filters, NewIncludeCategories(spec.Categories))
		case "exclude_action_type":
			filters = append(filters, NewExcludeActionTypes(spec.ActionTypes))
		default:
			return nil, &audit.ConfigurationError{
				Key:    "filters",
				Reason: fmt.Sprintf("unknown filter type %q", spec.Type),
			}
		}
	}
	return NewChain(filters...), nil
}

func upperSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[strings.ToUpper(v)] = struct{}{}
	}
	return set
}
