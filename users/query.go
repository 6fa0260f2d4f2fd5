package users

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Query limits.
const (
	SearchMaxLength    = 40
	PageMin            = 1
	PageMax            = 1000
	PageDefault        = 1
	LimitMin           = 1
	LimitMax           = 100
	LimitDefault       = 20
	ArrayMaxItems      = 50
	ArrayItemMaxLength = 100
)

// Query selects a page of users. Empty filters match everything.
type Query struct {
	Page          int
	Limit         int
	Search        string
	Nationalities []string
	Hobbies       []string
}

// ValidationError lists the problems found per query parameter.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+strings.Join(e.Fields[name], "; "))
	}
	return "invalid query parameters: " + strings.Join(parts, ", ")
}

type fieldErrors struct {
	Errors []string `json:"errors"`
}

type errorTree struct {
	Errors     []string               `json:"errors"`
	Properties map[string]fieldErrors `json:"properties,omitempty"`
}

// Details renders the errors as {"errors":[],"properties":{"page":{"errors":[...]}}}.
func (e *ValidationError) Details() any {
	tree := errorTree{Errors: []string{}, Properties: make(map[string]fieldErrors, len(e.Fields))}
	for name, msgs := range e.Fields {
		tree.Properties[name] = fieldErrors{Errors: msgs}
	}
	return tree
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// ParseQuery validates the query string of GET /api/users. The returned
// error, if any, is a *ValidationError.
func ParseQuery(v url.Values) (Query, error) {
	var verr ValidationError
	q := Query{
		Page:  parseBounded(&verr, v.Get("page"), "page", "Page", PageDefault, PageMin, PageMax),
		Limit: parseBounded(&verr, v.Get("limit"), "limit", "Limit", LimitDefault, LimitMin, LimitMax),
	}

	q.Search = strings.TrimSpace(v.Get("search"))
	if utf8.RuneCountInString(q.Search) > SearchMaxLength {
		verr.add("search", fmt.Sprintf("Too big: expected string to have <=%d characters", SearchMaxLength))
	}
	q.Nationalities = parseList(&verr, v.Get("nationalities"), "nationalities")
	q.Hobbies = parseList(&verr, v.Get("hobbies"), "hobbies")

	if len(verr.Fields) > 0 {
		return Query{}, &verr
	}
	return q, nil
}

func parseBounded(verr *ValidationError, raw, field, label string, def, min, max int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < min || n > max {
		verr.add(field, fmt.Sprintf("%s must be between %d and %d", label, min, max))
		return def
	}
	return n
}

// parseList splits a comma separated value, trimming items and dropping
// empty ones.
func parseList(verr *ValidationError, raw, field string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if utf8.RuneCountInString(item) > ArrayItemMaxLength {
			verr.add(field, fmt.Sprintf("Too big: expected string to have <=%d characters", ArrayItemMaxLength))
			continue
		}
		out = append(out, item)
	}
	if len(out) > ArrayMaxItems {
		verr.add(field, fmt.Sprintf("Too big: expected array to have <=%d items", ArrayMaxItems))
	}
	return out
}
