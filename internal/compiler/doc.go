// Package compiler implements the ordered passes that take a built library
// from construction to netlist-ready form: exhaustive validation,
// deterministic uniquification, predicate-driven flattening, and blackbox
// resolution.
//
// Pass order is fixed: Validate, Flatten, Uniquify, ResolveBlackBoxes. The
// flattener introduces instance-qualified names that may collide, which is
// why uniquification runs after it; resolution runs last because rendered
// blackbox text embeds final net names. Every pass takes and returns the
// library it transforms and restores all validator invariants before
// returning.
package compiler
