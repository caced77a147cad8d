// Package query translates API query strings into store-neutral listing
// options: filtering, sorting, field projection, and pagination.
package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// reserved parameter names never become filters.
var reserved = map[string]bool{
	"page":   true,
	"limit":  true,
	"sort":   true,
	"fields": true,
}

// comparison operators accepted in bracket syntax, e.g. price[lte]=500.
var operators = map[string]bool{
	"gte": true,
	"gt":  true,
	"lte": true,
	"lt":  true,
}

// SortField is one component of a sort order.
type SortField struct {
	Field string
	Desc  bool
}

// Options is the parsed form of a listing query string. Filter values are
// either literals (string or float64) or a map of operator name to literal
// for bracket syntax.
type Options struct {
	Filter map[string]any
	Sort   []SortField
	Fields []string
	Page   int
	Limit  int
}

// Skip returns the number of records to skip for the requested page.
func (o Options) Skip() int {
	return (o.Page - 1) * o.Limit
}

// Parse builds Options from URL query values. Numeric-looking values are
// parsed as float64 so stores can compare them against numeric fields.
// Malformed pagination or an unknown bracket operator is an error.
func Parse(values url.Values) (Options, error) {
	opts := Options{
		Filter: map[string]any{},
		Page:   DefaultPage,
		Limit:  DefaultLimit,
	}

	for key, vals := range values {
		if len(vals) == 0 || reserved[key] {
			continue
		}
		value := vals[0]

		field, op, bracketed := splitBracket(key)
		if bracketed {
			if !operators[op] {
				return Options{}, fmt.Errorf("unknown operator %q", op)
			}
			ops, ok := opts.Filter[field].(map[string]any)
			if !ok {
				ops = map[string]any{}
				opts.Filter[field] = ops
			}
			ops[op] = coerce(value)
			continue
		}
		opts.Filter[key] = coerce(value)
	}

	if raw := values.Get("sort"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if strings.HasPrefix(part, "-") {
				opts.Sort = append(opts.Sort, SortField{Field: part[1:], Desc: true})
			} else {
				opts.Sort = append(opts.Sort, SortField{Field: part})
			}
		}
	}
	if len(opts.Sort) == 0 {
		opts.Sort = []SortField{{Field: "created_at", Desc: true}}
	}

	if raw := values.Get("fields"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				opts.Fields = append(opts.Fields, part)
			}
		}
	}

	if raw := values.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return Options{}, fmt.Errorf("invalid page %q", raw)
		}
		opts.Page = page
	}
	if raw := values.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return Options{}, fmt.Errorf("invalid limit %q", raw)
		}
		if limit > MaxLimit {
			limit = MaxLimit
		}
		opts.Limit = limit
	}

	return opts, nil
}

// splitBracket decomposes "price[lte]" into ("price", "lte", true).
func splitBracket(key string) (field, op string, ok bool) {
	open := strings.IndexByte(key, '[')
	if open <= 0 || !strings.HasSuffix(key, "]") {
		return key, "", false
	}
	return key[:open], key[open+1 : len(key)-1], true
}

func coerce(value string) any {
	if n, err := strconv.ParseFloat(value, 64); err == nil {
		return n
	}
	return value
}
