// Package querysql compiles object query requests into one SQL statement
// and assembles the flat result rows back into the requested shape.
//
// Compile walks the request tree once. Each related field becomes a
// left-joined derived table (lateral where the dialect allows it), so
// the whole tree is read in a single round trip; batch keys become a
// literal key table joined the same way. Alongside the statement the
// compiler emits a Plan: a tree of Leaf, Object, Collection and Single
// nodes that an Assembler interprets row by row.
//
// All values are bound as parameters. Every statement carries an ORDER BY
// on the identity columns of each level so rows of one instance arrive
// together and results are deterministic.
package querysql
