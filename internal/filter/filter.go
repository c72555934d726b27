// internal/filter/filter.go

// Package filter implements declarative include/exclude pattern
// matching over canonical records.
package filter

import (
	"fmt"
	"regexp"

	"github.com/fanzapress/fanzapress/pkg/types"
)

// fieldRule is one field's compiled constraint set.
type fieldRule struct {
	name     string
	includes []*regexp.Regexp
	excludes []*regexp.Regexp
	value    func(*types.Record) string
}

// Engine is a compiled FilterSpec. It is a pure predicate; compile once,
// apply to every record in a run.
type Engine struct {
	rules []fieldRule
}

// NewEngine compiles the spec's patterns. Every pattern is a
// case-insensitive regular expression applied with search semantics; a
// malformed pattern is a configuration error surfaced immediately
// rather than a silently-dead filter.
func NewEngine(spec types.FilterSpec) (*Engine, error) {
	e := &Engine{}

	fields := []struct {
		name     string
		includes []string
		excludes []string
		value    func(*types.Record) string
	}{
		{"maker", spec.IncludeMaker, spec.ExcludeMaker, func(r *types.Record) string { return r.Maker }},
		{"actress", spec.IncludeActress, spec.ExcludeActress, func(r *types.Record) string { return r.Actress }},
		{"genre", spec.IncludeGenre, spec.ExcludeGenre, func(r *types.Record) string { return r.GenresJoined() }},
		{"title", spec.IncludeTitle, spec.ExcludeTitle, func(r *types.Record) string { return r.Title }},
		{"cid_prefix", spec.IncludeCIDPrefix, spec.ExcludeCIDPrefix, func(r *types.Record) string { return r.ExternalID }},
	}

	for _, f := range fields {
		rule := fieldRule{name: f.name, value: f.value}
		var err error
		if rule.includes, err = compileAll(f.name, f.includes); err != nil {
			return nil, err
		}
		if rule.excludes, err = compileAll(f.name, f.excludes); err != nil {
			return nil, err
		}
		if len(rule.includes) > 0 || len(rule.excludes) > 0 {
			e.rules = append(e.rules, rule)
		}
	}
	return e, nil
}

func compileAll(field string, patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if p == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s filter pattern %q: %w", field, p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// Passes reports whether the record satisfies every field constraint:
// for each field with an include list at least one pattern matches, and
// for each field with an exclude list no pattern matches. Multi-valued
// fields are matched against their joined string form, so a pattern
// hits if it hits anywhere in the flattened value.
func (e *Engine) Passes(rec *types.Record) bool {
	for _, rule := range e.rules {
		value := rule.value(rec)
		if len(rule.includes) > 0 && !matchAny(rule.includes, value) {
			return false
		}
		if matchAny(rule.excludes, value) {
			return false
		}
	}
	return true
}

// Reason returns a human-readable explanation of why the record fails,
// or the empty string when it passes. Used for skip logging.
func (e *Engine) Reason(rec *types.Record) string {
	for _, rule := range e.rules {
		value := rule.value(rec)
		if len(rule.includes) > 0 && !matchAny(rule.includes, value) {
			return fmt.Sprintf("%s matched no include pattern", rule.name)
		}
		for _, re := range rule.excludes {
			if re.MatchString(value) {
				return fmt.Sprintf("%s excluded by %q", rule.name, re.String())
			}
		}
	}
	return ""
}

func matchAny(patterns []*regexp.Regexp, value string) bool {
	for _, re := range patterns {
		if re.MatchString(value) {
			return true
		}
	}
	return false
}
