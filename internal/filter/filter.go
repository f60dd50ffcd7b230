// Package filter implements the property filter primitives the view
// controller uses to decide which items match a session's current filter
// set (spec.md §4.4).
package filter

import (
	"regexp"
	"strconv"
	"strings"
)

// StringMethod is a string-comparison filter method.
type StringMethod int

const (
	StringEquals StringMethod = iota
	StringStartsWith
	StringContains
	StringRegex
)

// NumericMethod is a numeric-comparison filter method.
type NumericMethod int

const (
	NumericEqual NumericMethod = iota
	NumericNotEqual
	NumericLess
	NumericLessOrEqual
	NumericGreater
	NumericGreaterOrEqual
)

// Filter holds a compiled matcher for one (method, property) pair. A
// pattern that parses as a number compiles both a string and a numeric
// matcher; the item-handler (via MatchString/MatchNumber) picks which to
// apply per property (spec.md §4.4).
type Filter struct {
	ID         int
	PropertyID string
	Pattern    string

	stringMethod StringMethod
	numericOK    bool
	numericMethod NumericMethod
	numericValue  float64
	regex         *regexp.Regexp
}

// New compiles a filter. stringMethod selects the string matcher; when the
// pattern additionally parses as a float64, a numeric matcher using
// numericMethod (==, !=, <, <=, >, >=) is compiled alongside it.
// An empty pattern produces an "empty" filter (IsEmpty reports true), which
// match() treats as absent (spec.md §4.4).
func New(id int, propertyID string, stringMethod StringMethod, numericMethod NumericMethod, pattern string) (*Filter, error) {
	f := &Filter{
		ID:            id,
		PropertyID:    propertyID,
		Pattern:       pattern,
		stringMethod:  stringMethod,
		numericMethod: numericMethod,
	}
	if pattern == "" {
		return f, nil
	}
	if stringMethod == StringRegex {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, err
		}
		f.regex = re
	}
	if v, err := strconv.ParseFloat(pattern, 64); err == nil {
		f.numericOK = true
		f.numericValue = v
	}
	return f, nil
}

// IsEmpty reports whether the filter's pattern is empty, in which case it
// is treated as absent (spec.md §4.4).
func (f *Filter) IsEmpty() bool { return f.Pattern == "" }

// MatchString applies the compiled string matcher to value.
func (f *Filter) MatchString(value string) bool {
	if f.IsEmpty() {
		return true
	}
	switch f.stringMethod {
	case StringEquals:
		return strings.EqualFold(value, f.Pattern)
	case StringStartsWith:
		return len(value) >= len(f.Pattern) && strings.EqualFold(value[:len(f.Pattern)], f.Pattern)
	case StringContains:
		return strings.Contains(strings.ToLower(value), strings.ToLower(f.Pattern))
	case StringRegex:
		return f.regex != nil && f.regex.MatchString(value)
	default:
		return false
	}
}

// MatchNumber applies the compiled numeric matcher to value. It returns
// false (not a match) if the pattern never parsed as a number.
func (f *Filter) MatchNumber(value float64) bool {
	if f.IsEmpty() {
		return true
	}
	if !f.numericOK {
		return false
	}
	switch f.numericMethod {
	case NumericEqual:
		return value == f.numericValue
	case NumericNotEqual:
		return value != f.numericValue
	case NumericLess:
		return value < f.numericValue
	case NumericLessOrEqual:
		return value <= f.numericValue
	case NumericGreater:
		return value > f.numericValue
	case NumericGreaterOrEqual:
		return value >= f.numericValue
	default:
		return false
	}
}

// HasNumericMatcher reports whether the pattern parsed as a number, i.e.
// whether MatchNumber can meaningfully be applied.
func (f *Filter) HasNumericMatcher() bool { return f.numericOK }

// PropertyValues is what an item-handler supplies per property when asked
// to evaluate a filter: the property's string rendering, and optionally
// its numeric value (ok=false when the property has no numeric form).
type PropertyValues interface {
	StringValue(propertyID string) string
	NumberValue(propertyID string) (float64, bool)
}

// Match is the conjunction over non-empty filters (spec.md §4.4
// "match(filters, item)"). An item-handler supplies PropertyValues so the
// filter package never needs to know about concrete item types.
func Match(filters []*Filter, item PropertyValues) bool {
	for _, f := range filters {
		if f.IsEmpty() {
			continue
		}
		if f.numericOK {
			if n, ok := item.NumberValue(f.PropertyID); ok {
				if !f.MatchNumber(n) {
					return false
				}
				continue
			}
		}
		if !f.MatchString(item.StringValue(f.PropertyID)) {
			return false
		}
	}
	return true
}
