// Package grafo provides a lightweight, embeddable dependency-graph
// execution engine for Go.
//
// Grafo is designed for services and tools that compute many named,
// interdependent results: build pipelines, data preparation chains,
// enrichment fan-outs. Work is declared as a graph of typed steps; the
// engine executes it in dependency order, memoizes every node's outputs
// under a content fingerprint, and on the next run re-executes only what
// changed. It runs fully in Go, supports multiple persistence backends,
// and integrates cleanly into existing codebases.
//
// # Core Concepts
//
// The grafo programming model is intentionally small and idiomatic:
//
//  1. Step
//  2. Graph
//  3. Engine
//  4. Scheduler
//  5. Worker
//  6. LocalRunner
//
// These components form a complete incremental-execution system with
// deterministic invalidation, durable results (when using persistent
// backends), and a clear mental model.
//
// # Step
//
// A Step is an immutable schema around a runner: declared, typed input and
// output fields, a name, and a version. The engine binds inputs, calls the
// runner, and validates outputs against the schema:
//
//	upper := grafo.FuncStep("upper",
//	    []grafo.FieldSpec{grafo.Field("text", grafo.KindString)},
//	    []grafo.FieldSpec{grafo.Field("text", grafo.KindString)},
//	    func(ctx context.Context, in grafo.Values) (grafo.Values, error) {
//	        return grafo.Values{"text": strings.ToUpper(in["text"].(string))}, nil
//	    })
//
// Steps are deterministic by contract: the same inputs produce the same
// outputs. The version is part of a node's cache fingerprint, so bumping
// it forces re-execution even when input values are unchanged.
//
// # Graph
//
// A Graph instantiates steps under instance names and wires output fields
// into input fields. Connections carry both data and execution order;
// unconnected inputs are bound to literal values. Graphs nest: an entire
// graph embeds in a parent as a single vertex, reachable through the
// input and output aliases it exports.
//
// GraphBuilder provides the fluent assembly surface:
//
//	g, err := grafo.New("pipeline").
//	    Step("fetch", fetchStep).
//	    Step("parse", parseStep).
//	    Connect("fetch", "body", "parse", "raw").
//	    Input("fetch", "url", "https://example.com/feed").
//	    Build()
//
// Graphs also round-trip through declarative JSON or YAML definitions and
// export to Graphviz DOT for inspection.
//
// # Engine
//
// The Engine flattens a graph, computes each node's fingerprint from its
// step identity, literal inputs, and upstream fingerprints, and skips any
// node whose stored result is still valid. Everything else executes, and
// successful outputs are persisted for the next run. A failing node fails
// its dependent subtree, never the rest of the run; the RunReport records
// a per-node outcome either way.
//
// Engines can be backed by different storage systems:
//
//   - In-memory (non-durable, best for tests)
//   - Filesystem (one directory per node result)
//   - SQLite (embedded durability, results and history in one file)
//   - Redis (shared cache and queues for worker fleets)
//   - PostgreSQL and MongoDB, via the postgres and mongo submodules
//
// # Scheduler
//
// Every run picks one of three interchangeable execution strategies in
// RunConfig: SchedulerSerial walks the topological order one node at a
// time, SchedulerParallel executes the ready frontier on a bounded
// goroutine pool, and SchedulerDistributed dispatches ready nodes to a
// task queue and collects worker answers from a results queue. Cache
// hits, skips, and failure poisoning behave identically under all three.
//
// # Worker
//
// A Worker pulls dispatched node tasks from a queue, executes them from
// its own step registry, persists results to the shared store, and
// answers on the results queue. Workers are stateless and scale
// horizontally; any number may share one pair of queues.
//
// # LocalRunner
//
// LocalRunner bundles an in-memory engine, in-memory queues, and a worker
// over the caller's registry into a single process-local helper, so
// distributed runs can be developed and debugged without any
// infrastructure. It is intentionally not crash-durable.
//
// # Summary
//
// Grafo's goal is incremental computation that feels like Go: declare
// typed steps, wire them into graphs, run them anywhere from a unit test
// to a worker fleet, and pay only for what changed. Engines decide what
// is stale, Schedulers decide where nodes execute, Workers execute them,
// and the run store remembers.
//
// For runnable programs, see the /examples directory.
package grafo
