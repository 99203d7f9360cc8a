// Package worker provides the process that executes graph nodes on behalf
// of a distributed run.
//
// A dispatcher (the engine's distributed scheduler) resolves fingerprints
// and cache lookups in-process and enqueues one run-node task per cache
// miss. Workers consume those tasks, execute the step's runner with the
// resolved input values, and answer on a second queue with a node-result
// task carrying the outputs or the error. Successful results are also
// persisted to the shared run store, so later runs skip the node entirely.
//
// # Requirements
//
// A worker needs three things the dispatcher also has:
//
//   - a Registry holding every step the graphs reference, since only step
//     schemas and runners registered in the worker's process can execute
//   - the shared run store, for persisting results and for per-node
//     working directories
//   - the task and result queues, shared with the dispatcher
//
// Steps are matched by name and version. A task naming a step the worker
// does not know is answered with an unknown-step error rather than
// dropped, so the dispatching run fails that node instead of hanging.
//
// # Scaling and delivery
//
// Workers are stateless between tasks; run any number of them against the
// same queues, in one process or many. Delivery is at-most-once: a worker
// that dies mid-task loses that task, and the affected run's unsettled
// nodes are dispatched again on the next Run of the graph.
//
// Most applications construct workers through the grafo package helpers,
// which wire the registry, store, and queues together.
package worker
