package gateway

import (
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strconv"
)

// Method names a query predicate.
type Method string

const (
	MethodEqual       Method = "equal"
	MethodOrderDesc   Method = "orderDesc"
	MethodLimit       Method = "limit"
	MethodCursorAfter Method = "cursorAfter"
	MethodSearch      Method = "search"
)

// Document fields understood by list queries.
const (
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
	FieldCreator   = "creator"
	FieldCaption   = "caption"
	FieldAccountID = "accountId"
	FieldUser      = "user"
	FieldPost      = "post"
	FieldLikes     = "likes"
)

// MaxLimit caps the page size a single list call may ask for.
const MaxLimit = 100

// Filter is one predicate of a Query.
type Filter struct {
	Method Method `json:"method"`
	Field  string `json:"attribute,omitempty"`
	Value  string `json:"value,omitempty"`
}

// Query is an ordered list of predicates applied to a collection listing.
type Query []Filter

// Equal matches documents whose field equals value. For FieldLikes it
// matches documents whose likers contain value.
func Equal(field, value string) Filter {
	return Filter{Method: MethodEqual, Field: field, Value: value}
}

// OrderDesc sorts by field, newest first.
func OrderDesc(field string) Filter {
	return Filter{Method: MethodOrderDesc, Field: field}
}

// Limit caps the number of returned documents.
func Limit(n int) Filter {
	return Filter{Method: MethodLimit, Value: strconv.Itoa(n)}
}

// CursorAfter starts the listing right after the document with the given id.
func CursorAfter(id string) Filter {
	return Filter{Method: MethodCursorAfter, Value: id}
}

// Search matches documents whose field contains term.
func Search(field, term string) Filter {
	return Filter{Method: MethodSearch, Field: field, Value: term}
}

// NewQuery builds a Query from filters.
func NewQuery(filters ...Filter) Query {
	return Query(filters)
}

// EqualTo returns the value of the first equality filter on field.
func (q Query) EqualTo(field string) (string, bool) {
	for _, f := range q {
		if f.Method == MethodEqual && f.Field == field {
			return f.Value, true
		}
	}
	return "", false
}

// Order returns the field of the order filter, if any.
func (q Query) Order() string {
	for _, f := range q {
		if f.Method == MethodOrderDesc {
			return f.Field
		}
	}
	return ""
}

// LimitOr returns the requested limit, or def when absent.
func (q Query) LimitOr(def int) int {
	for _, f := range q {
		if f.Method == MethodLimit {
			if n, err := strconv.Atoi(f.Value); err == nil {
				return n
			}
		}
	}
	return def
}

// Cursor returns the cursor-after id, or empty.
func (q Query) Cursor() string {
	for _, f := range q {
		if f.Method == MethodCursorAfter {
			return f.Value
		}
	}
	return ""
}

// SearchTerm returns the field and term of the search filter, if any.
func (q Query) SearchTerm() (field, term string, ok bool) {
	for _, f := range q {
		if f.Method == MethodSearch {
			return f.Field, f.Value, true
		}
	}
	return "", "", false
}

// Validate checks the query against the fields a collection allows to be
// filtered, ordered and searched.
func (q Query) Validate(equalFields, orderFields, searchFields []string) error {
	for _, f := range q {
		switch f.Method {
		case MethodEqual:
			if !slices.Contains(equalFields, f.Field) {
				return Invalidf("cannot filter on %q", f.Field)
			}
		case MethodOrderDesc:
			if !slices.Contains(orderFields, f.Field) {
				return Invalidf("cannot order by %q", f.Field)
			}
		case MethodSearch:
			if !slices.Contains(searchFields, f.Field) {
				return Invalidf("cannot search %q", f.Field)
			}
			if f.Value == "" {
				return Invalidf("empty search term")
			}
		case MethodLimit:
			n, err := strconv.Atoi(f.Value)
			if err != nil || n <= 0 || n > MaxLimit {
				return Invalidf("limit must be within 1..%d", MaxLimit)
			}
		case MethodCursorAfter:
			if f.Value == "" {
				return Invalidf("empty cursor")
			}
		default:
			return Invalidf("unknown query method %q", f.Method)
		}
	}
	return nil
}

// Encode serialises the query into URL values under "queries[]".
func (q Query) Encode() url.Values {
	v := url.Values{}
	for _, f := range q {
		b, _ := json.Marshal(f)
		v.Add("queries[]", string(b))
	}
	return v
}

// ParseQuery is the inverse of Encode.
func ParseQuery(v url.Values) (Query, error) {
	raw := v["queries[]"]
	q := make(Query, 0, len(raw))
	for _, s := range raw {
		var f Filter
		if err := json.Unmarshal([]byte(s), &f); err != nil {
			return nil, fmt.Errorf("%w: malformed query %q", ErrInvalid, s)
		}
		q = append(q, f)
	}
	return q, nil
}
