// Package api contains the core building blocks used by the grafo workflow
// engine. It provides the low-level primitives for declaring steps, deriving
// cache fingerprints, reporting run results, and observing engine behavior.
//
// Most users interact with the higher-level grafo package, which re-exports
// selected types and helpers from this package. The api package is intended
// for advanced use cases, custom integrations, or contributors extending the
// engine itself.
//
// # Concepts
//
// The api package centers around a small set of concepts:
//
//   - Steps and runners
//   - Fingerprints
//   - Outcomes and run reports
//   - Observability
//
// These primitives are assembled into executable graphs by the dag package
// and driven by the engine behind the grafo package, but can also be used
// directly where fine-grained control is needed.
//
// # Steps and Runners
//
// A Step is an immutable schema: a named set of typed input and output
// fields around an opaque Runner. The engine never inspects what a runner
// does; it only enforces the schema on the values flowing in and out. A
// runner must treat its input map as read-only and return a map containing
// every declared non-optional output.
//
// Runners that produce file artifacts should write them under the private
// working directory carried on the context (see WorkDir); the engine
// reserves one directory per graph/instance pair and never shares it
// between nodes.
//
// # Fingerprints
//
// A node's fingerprint is a deterministic hash of its step identity, its
// literal input values, and the identity of every upstream output feeding
// it. Fingerprints drive memoized re-execution: a node whose fingerprint
// matches a previously persisted record is skipped and its recorded outputs
// are reused. Because connected inputs contribute the upstream node's
// fingerprint rather than the propagated value, any change to an ancestor
// invalidates the whole dependent subtree.
//
// # Outcomes and Run Reports
//
// Every node ends a run in exactly one terminal state: Succeeded, Skipped,
// or Failed. A failure never aborts the run; it poisons only the dependent
// subtree with UpstreamFailureError while independent branches continue.
// The RunReport enumerates all outcomes and aggregates root-cause errors.
//
// # Observability
//
// The api package defines the Observer interface, which engines and workers
// use to report lifecycle events and metrics.
//
// Observers can be used to:
//
//   - Log run and node transitions (LoggingObserver, structured slog)
//   - Collect in-process metrics (BasicMetrics)
//   - Export metrics to Prometheus (PrometheusObserver)
//
// Multiple observers combine with NewCompositeObserver.
//
// # Usage
//
// Most applications should start from the grafo package, using the graph
// builder and engine constructors provided there. The api package is useful
// when you need lower-level access, custom composition, or when
// contributing changes to the core engine.
package api
