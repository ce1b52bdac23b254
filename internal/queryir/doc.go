// Package queryir provides the object-query request model consumed by the
// nestql backends.
//
// An ObjectQueryRequest is a finite tree: every RelatedField wraps its own
// sub-request, so a self-referential schema (an address with a parent
// address) still yields a request whose depth equals the selection depth.
// Backends compile it with plain structural recursion.
//
// ARCHITECTURE:
//
//	[request document] → [schema registry] → [ObjectQueryRequest] → [SQL backend]
//	                                                              → [other backends]
//
// The request layer resolves field names to columns and join
// configuration; this package holds the result and checks its structure.
// Backends never see field names they must look up again.
//
// SEALED INTERFACES:
//
// FieldSpec and JoinSpec are sealed interfaces using the marker method
// pattern. Only types in this package implement them, so backends can
// switch exhaustively:
//
//	switch j := field.Join.(type) {
//	case ColumnJoin:
//	    // direct foreign-key pairs
//	case JoinTable:
//	    // two hops through a junction
//	}
//
// NULL PRESENCE:
//
// Every record scope has an existence marker: the first key column of its
// type, a ScalarField with IsKey, or (for types without either) a row
// number the compiler adds to the scope's table. A related or embedded value is null exactly
// when its marker column is null in the row. It is never an empty object.
//
// LITERALS:
//
// Filter operands and batch key values use ir.IRValue. There are no floats;
// keys and equality filters must compare exactly.
package queryir
