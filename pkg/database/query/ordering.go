package query

// Ordering is the id order of a returned set of records
type Ordering uint

const (
	Ascending Ordering = iota
	Descending
)

// Admits reports whether a record with the given id comes after the cursor
// position when walking in this order.
func (o Ordering) Admits(id uint64, cursor Cursor) bool {
	if len(cursor) == 0 {
		return true
	}
	if o == Descending {
		return id < cursor.ToUint64()
	}
	return id > cursor.ToUint64()
}

func (o Ordering) String() string {
	if o == Descending {
		return "DESC"
	}
	return "ASC"
}

func (o Ordering) comparison() string {
	if o == Descending {
		return "<"
	}
	return ">"
}
