package handlers

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"tradeindia-proxy/internal/tradeindia"
)

const (
	DefaultLimit  = 100
	MaxLimit      = 100
	DefaultPageNo = 1

	DateLayout = "2006-01-02"
)

// Only the shape is checked; 2024-13-40 passes and is left for upstream to judge.
var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

type QueryErrorKind int

const (
	BadDateFormat QueryErrorKind = iota + 1
	BadLimit
	BadPage
)

// QueryError is a caller-fixable problem with the query string.
type QueryError struct {
	Kind QueryErrorKind
}

func (e *QueryError) Error() string {
	switch e.Kind {
	case BadDateFormat:
		return "Invalid date format. Use YYYY-MM-DD"
	case BadLimit:
		return "limit must be a number between 1 and 100"
	case BadPage:
		return "page_no must be a positive number"
	}
	return "invalid query"
}

// ParseQuery validates the lead query string. Missing or empty dates become
// today. from_date is not required to precede to_date.
func ParseQuery(q url.Values, today string) (tradeindia.Query, error) {
	out := tradeindia.Query{
		FromDate: q.Get("from_date"),
		ToDate:   q.Get("to_date"),
		Limit:    DefaultLimit,
		PageNo:   DefaultPageNo,
	}
	if out.FromDate == "" {
		out.FromDate = today
	}
	if out.ToDate == "" {
		out.ToDate = today
	}
	if !dateRe.MatchString(out.FromDate) || !dateRe.MatchString(out.ToDate) {
		return tradeindia.Query{}, &QueryError{Kind: BadDateFormat}
	}

	if _, ok := q["limit"]; ok {
		n, ok := leadingInt(q.Get("limit"))
		if !ok || n < 1 || n > MaxLimit {
			return tradeindia.Query{}, &QueryError{Kind: BadLimit}
		}
		out.Limit = n
	}

	if _, ok := q["page_no"]; ok {
		n, ok := leadingInt(q.Get("page_no"))
		if !ok || n < 1 {
			return tradeindia.Query{}, &QueryError{Kind: BadPage}
		}
		out.PageNo = n
	}

	return out, nil
}

// leadingInt reads an optionally signed run of leading digits after any
// leading whitespace, ignoring whatever follows: "10abc" is 10, "1.5" is 1.
// Existing clients rely on this leniency.
func leadingInt(s string) (int, bool) {
	s = strings.TrimLeft(s, " \t\n\r\v\f")
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}
