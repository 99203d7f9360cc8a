// Package dag builds and validates the workflow graphs executed by the
// grafo engine. A Graph is a named set of step instances (Nodes) and
// embedded sub-graphs connected by typed output -> input edges.
//
// # Construction
//
// Graphs are built imperatively: add nodes with AddStep or AddNode, embed
// other graphs with AddGraph, bind literals with SetInput, and wire data
// flow with Connect or ConnectMany. Construction is strict: the call that
// would introduce a structural mistake fails with a typed error and leaves
// the graph exactly as it was.
//
//   - Unknown instance or field names fail with UnknownInstanceError or
//     UnknownFieldError.
//   - A second incoming connection on the same input field fails with
//     DuplicateBindingError; so does a literal on a connected field.
//   - An edge whose endpoints' declared kinds cannot carry the same value
//     fails with IncompatibleKindsError.
//   - An edge that would close a cycle fails with CycleDetectedError
//     before the graph is modified.
//
// A literal on a field that later receives a connection is displaced; the
// connection owns the field from then on.
//
// # Composition
//
// An embedded graph appears to its parent as a single vertex whose fields
// are the aliases the inner graph declared with ExportInput and
// ExportOutput. The parent connects to aliases exactly like node fields;
// the wiring descends through the alias to the innermost node when the
// graph is flattened. Nesting may be arbitrarily deep, but a graph cannot
// directly or transitively embed itself.
//
// # Ordering and flattening
//
// TopologicalOrder walks the graph's vertices lazily in dependency order
// with insertion-order tie-breaking, so the sequence is reproducible for
// identical structure. Flatten resolves every level of nesting into a
// single Plan of dot-qualified nodes ("prep.align") and re-verifies
// acyclicity; the Plan is what schedulers execute and what keys run
// records in the store.
//
// # Serialization
//
// Definition captures a graph's structure (not its runner code) in a form
// that marshals to JSON or YAML and rebuilds against a step Registry. DOT
// renders the graph for Graphviz, either collapsed to one vertex per
// embedded graph or expanded into clusters.
package dag
