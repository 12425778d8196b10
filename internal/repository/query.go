package repository

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/couplegram/couplegram/internal/gateway"
)

// defaultListLimit applies when a query carries no limit.
const defaultListLimit = 25

// listing maps the query fields of one collection onto SQL. Only fields
// present here can reach a statement; everything else is rejected.
type listing struct {
	table   string
	columns string
	// equal maps a field to a condition with one %s placeholder.
	equal map[string]string
	// order maps a field to a timestamp column.
	order map[string]string
	// search maps a field to the text column searched.
	search map[string]string
}

var (
	userListing = listing{
		table:   "users",
		columns: userColumns,
		equal: map[string]string{
			gateway.FieldAccountID: "account_id = %s",
			"username":             "lower(username) = lower(%s)",
		},
		order:  map[string]string{gateway.FieldCreatedAt: "created_at", gateway.FieldUpdatedAt: "updated_at"},
		search: map[string]string{"name": "name", "username": "username"},
	}
	postListing = listing{
		table:   "posts",
		columns: postColumns,
		equal: map[string]string{
			gateway.FieldCreator: "creator_id = %s",
			gateway.FieldLikes:   "%s = ANY(likers)",
		},
		order:  map[string]string{gateway.FieldCreatedAt: "created_at", gateway.FieldUpdatedAt: "updated_at"},
		search: map[string]string{gateway.FieldCaption: "caption"},
	}
	saveListing = listing{
		table:   "saves",
		columns: saveColumns,
		equal: map[string]string{
			gateway.FieldUser: "user_id = %s",
			gateway.FieldPost: "post_id = %s",
		},
		order: map[string]string{gateway.FieldCreatedAt: "created_at"},
	}
)

// build translates q into a SELECT statement and its arguments. Results
// default to oldest first; ties on the timestamp are broken by id. A cursor
// positions the listing strictly after the row with that id in the chosen
// order.
func (l listing) build(q gateway.Query) (string, []any, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	orderCol, dir, cmp := "created_at", "ASC", ">"
	for _, f := range q {
		switch f.Method {
		case gateway.MethodEqual:
			tmpl, ok := l.equal[f.Field]
			if !ok {
				return "", nil, gateway.Invalidf("cannot filter on %q", f.Field)
			}
			conds = append(conds, fmt.Sprintf(tmpl, arg(f.Value)))
		case gateway.MethodSearch:
			col, ok := l.search[f.Field]
			if !ok {
				return "", nil, gateway.Invalidf("cannot search %q", f.Field)
			}
			conds = append(conds, fmt.Sprintf("to_tsvector('simple', %s) @@ plainto_tsquery('simple', %s)", col, arg(f.Value)))
		case gateway.MethodOrderDesc:
			col, ok := l.order[f.Field]
			if !ok {
				return "", nil, gateway.Invalidf("cannot order by %q", f.Field)
			}
			orderCol, dir, cmp = col, "DESC", "<"
		}
	}
	if cursor := q.Cursor(); cursor != "" {
		p := arg(cursor)
		conds = append(conds, fmt.Sprintf("(%[1]s, id) %[2]s (SELECT %[1]s, id FROM %[3]s WHERE id = %[4]s)", orderCol, cmp, l.table, p))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", l.columns, l.table)
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	fmt.Fprintf(&b, " ORDER BY %[1]s %[2]s, id %[2]s", orderCol, dir)
	fmt.Fprintf(&b, " LIMIT %s", arg(q.LimitOr(defaultListLimit)))
	return b.String(), args, nil
}
