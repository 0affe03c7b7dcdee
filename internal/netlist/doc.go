// Package netlist renders a finalized library as simulator netlist text.
//
// A Dialect is the capability contract of one textual format: its
// identifier rules (which drive uniquification), whether it can express
// hierarchical subcircuit definitions, and how it emits headers, instances,
// primitives, and resolved blackbox text. Export walks the library in
// dependency order and drives the dialect over an io.Writer; it only reads
// the library, so concurrent exports of distinct libraries are safe.
//
// Export expects its input to have been validated, uniquified under the
// dialect's identifier rules, flattened if the dialect cannot express
// hierarchy, and blackbox-resolved for the dialect's name.
package netlist
