package querysql

import "strconv"

// aliasAllocator mints column and table aliases for one compile session.
//
// The two counters are independent and only ever increase, so no alias is
// issued twice within a session at any nesting depth. An allocator must
// never be shared across sessions.
type aliasAllocator struct {
	columns int
	tables  int
}

func newAliasAllocator() *aliasAllocator {
	return &aliasAllocator{}
}

// nextColumnAlias returns c1, c2, ...
func (a *aliasAllocator) nextColumnAlias() string {
	a.columns++
	return "c" + strconv.Itoa(a.columns)
}

// nextTableAlias returns t1, t2, ...
func (a *aliasAllocator) nextTableAlias() string {
	a.tables++
	return "t" + strconv.Itoa(a.tables)
}

// issued returns the number of aliases handed out so far.
func (a *aliasAllocator) issued() (columns, tables int) {
	return a.columns, a.tables
}
