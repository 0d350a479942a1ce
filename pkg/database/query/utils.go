package query

import "strconv"

// MaxPagingLimit bounds the page size stores accept.
const MaxPagingLimit = 1000

// PaginateQuery appends the cursor condition, ordering and limit to a query
// whose WHERE clause is fully parenthesized:
//
//	PaginateQuery("SELECT * FROM t WHERE (owner = $1)", []interface{}{owner}, ToCursor(7), 10, Descending)
//	> "SELECT * FROM t WHERE (owner = $1) AND id < $2 ORDER BY id DESC LIMIT $3"
func PaginateQuery(query string, opts []interface{}, cursor Cursor, limit uint64, direction Ordering) (string, []interface{}) {
	if len(cursor) > 0 {
		opts = append(opts, cursor.ToUint64())
		query += " AND id " + direction.comparison() + " $" + strconv.Itoa(len(opts))
	}

	query += " ORDER BY id " + direction.String()

	if limit > 0 {
		opts = append(opts, limit)
		query += " LIMIT $" + strconv.Itoa(len(opts))
	}

	return query, opts
}
