// Package ir provides the circuit intermediate representation for netir.
//
// This package contains the Library graph (cells, primitives, blackboxes,
// signals, instances), the fail-fast construction API, and content-addressed
// hashing. All other internal packages import ir; ir imports nothing
// internal. This ensures IR remains the foundational layer with no circular
// dependencies.
//
// Key design constraints:
//   - No binary floats in hashed state - real-valued parameters are stored
//     as decimal literals (see ParamReal)
//   - Definition ids are dense, library-scoped, and never reused within a
//     build session; passes key diagnostics and caches off them
//   - Construction fails fast with *StructuralError; deferred checks belong
//     to the compiler package's validator
package ir
