package grafo

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/grafo/internal/engine"
	"github.com/petrijr/grafo/internal/runstore"
	"github.com/petrijr/grafo/internal/taskqueue"
	"github.com/petrijr/grafo/pkg/api"
	"github.com/petrijr/grafo/pkg/dag"
	"github.com/petrijr/grafo/pkg/worker"
)

// Re-export key types so users don't need to dig into pkg/api and pkg/dag.

type (
	Step       = api.Step
	FieldSpec  = api.FieldSpec
	Values     = api.Values
	ValueKind  = api.ValueKind
	Runner     = api.Runner
	RunnerFunc = api.RunnerFunc
	Registry   = api.Registry

	RunConfig     = api.RunConfig
	SchedulerKind = api.SchedulerKind
	RunReport     = api.RunReport
	Outcome       = api.Outcome
	NodeStatus    = api.NodeStatus
	RunRef        = api.RunRef
	RunEvent      = api.RunEvent
	EventType     = api.EventType

	Observer             = api.Observer
	NoopObserver         = api.NoopObserver
	LoggingObserver      = api.LoggingObserver
	CompositeObserver    = api.CompositeObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	PrometheusObserver   = api.PrometheusObserver

	Graph      = dag.Graph
	Node       = dag.Node
	Link       = dag.Link
	Plan       = dag.Plan
	Definition = dag.Definition
	DOTOptions = dag.DOTOptions

	Worker = worker.Worker
)

// Storage and queue contracts live in internal packages; the aliases make
// them nameable by callers assembling their own EngineConfig or Worker.

type (
	Queue      = taskqueue.Queue
	Task       = taskqueue.Task
	TaskType   = taskqueue.TaskType
	RunStore   = runstore.Store
	RunRecord  = runstore.Record
	EventStore = runstore.EventStore
)

// Re-export common helpers.

var (
	NewRegistry           = api.NewRegistry
	NewLoggingObserver    = api.NewLoggingObserver
	NewCompositeObserver  = api.NewCompositeObserver
	NewPrometheusObserver = api.NewPrometheusObserver

	NewGraph           = dag.New
	DefinitionFromJSON = dag.DefinitionFromJSON
	DefinitionFromYAML = dag.DefinitionFromYAML

	IsUpstreamFailure = api.IsUpstreamFailure
	IsTimeout         = api.IsTimeout
)

// Re-export sentinel errors for convenience.

var (
	ErrNoQueue        = api.ErrNoQueue
	ErrUnknownStep    = api.ErrUnknownStep
	ErrRecordNotFound = runstore.ErrRecordNotFound
	ErrQueueClosed    = taskqueue.ErrQueueClosed
)

// Re-export scheduler, status, kind, and task constants for convenience.

const (
	SchedulerSerial      = api.SchedulerSerial
	SchedulerParallel    = api.SchedulerParallel
	SchedulerDistributed = api.SchedulerDistributed

	NodePending   = api.NodePending
	NodeRunning   = api.NodeRunning
	NodeSucceeded = api.NodeSucceeded
	NodeSkipped   = api.NodeSkipped
	NodeFailed    = api.NodeFailed

	KindAny     = api.KindAny
	KindString  = api.KindString
	KindInt     = api.KindInt
	KindFloat   = api.KindFloat
	KindBool    = api.KindBool
	KindBytes   = api.KindBytes
	KindStrings = api.KindStrings
	KindMap     = api.KindMap

	TaskTypeRunNode    = taskqueue.TaskTypeRunNode
	TaskTypeNodeResult = taskqueue.TaskTypeNodeResult

	EventRunStarted   = api.EventRunStarted
	EventRunCompleted = api.EventRunCompleted
	EventRunFailed    = api.EventRunFailed

	EventNodeStarted   = api.EventNodeStarted
	EventNodeSucceeded = api.EventNodeSucceeded
	EventNodeSkipped   = api.EventNodeSkipped
	EventNodeFailed    = api.EventNodeFailed

	DefaultVersion = api.DefaultVersion
)

// Engine runs graphs and answers questions about past runs.
type Engine interface {
	// Run executes g under cfg and reports per-node outcomes. It returns
	// an error only when the run itself could not proceed; individual node
	// failures land in the report.
	Run(ctx context.Context, g *Graph, cfg RunConfig) (*RunReport, error)

	// History lists the recorded events of a past run, in order.
	History(ctx context.Context, runID string) ([]RunEvent, error)

	// Records lists the memoized results of a graph, by instance name.
	Records(ctx context.Context, graph string) ([]RunRecord, error)

	// Close releases engine-owned resources.
	Close() error
}

// EngineConfig assembles an Engine from explicit parts. Most callers use
// one of the backend constructors below instead; this exists for mixed
// deployments, such as a SQLite store with Redis queues.
//
// Zero fields get safe defaults: an in-memory store, in-memory run
// history, no observer, slog.Default(). Queues stay nil unless set, which
// leaves SchedulerDistributed unavailable.
type EngineConfig struct {
	Store    RunStore
	Events   EventStore
	Observer Observer
	Logger   *slog.Logger
	Tasks    Queue
	Results  Queue
}

// NewEngine builds an Engine from cfg.
func NewEngine(cfg EngineConfig) Engine {
	if cfg.Events == nil {
		cfg.Events = runstore.NewMemoryEventStore()
	}
	return engine.New(engine.Config{
		Store:    cfg.Store,
		Events:   cfg.Events,
		Observer: cfg.Observer,
		Logger:   cfg.Logger,
		Tasks:    cfg.Tasks,
		Results:  cfg.Results,
	})
}

// Engine constructors
// These wrap the internal engine and store packages so external callers
// never need to import internal packages.

// NewInMemoryEngine returns an Engine backed entirely by in-memory state.
// Memoization and run history last only as long as the process.
func NewInMemoryEngine() Engine {
	return NewEngine(EngineConfig{})
}

// NewInMemoryEngineWithObserver returns an in-memory Engine with the given
// Observer.
func NewInMemoryEngineWithObserver(obs Observer) Engine {
	return NewEngine(EngineConfig{Observer: obs})
}

// NewFSEngine returns an Engine that memoizes node results on disk under
// baseDir, one directory per (graph, instance). Run history is in-memory.
func NewFSEngine(baseDir string) (Engine, error) {
	store, err := runstore.NewFSStore(baseDir)
	if err != nil {
		return nil, err
	}
	return NewEngine(EngineConfig{Store: store}), nil
}

// NewFSEngineWithObserver returns a filesystem-backed Engine with the given
// Observer.
func NewFSEngineWithObserver(baseDir string, obs Observer) (Engine, error) {
	store, err := runstore.NewFSStore(baseDir)
	if err != nil {
		return nil, err
	}
	return NewEngine(EngineConfig{Store: store, Observer: obs}), nil
}

// NewSQLiteEngine returns an Engine that keeps memoized results and run
// history in a SQLite database. The caller owns the handle and must import
// a SQLite driver such as modernc.org/sqlite.
func NewSQLiteEngine(db *sql.DB) (Engine, error) {
	return NewSQLiteEngineWithObserver(db, nil)
}

// NewSQLiteEngineWithObserver returns a SQLite-backed Engine with the given
// Observer.
func NewSQLiteEngineWithObserver(db *sql.DB, obs Observer) (Engine, error) {
	store, err := runstore.NewSQLiteStore(db, "")
	if err != nil {
		return nil, err
	}
	events, err := runstore.NewSQLiteEventStore(db)
	if err != nil {
		return nil, err
	}
	return NewEngine(EngineConfig{Store: store, Events: events, Observer: obs}), nil
}

// NewRedisEngine returns an Engine that keeps memoized results, run
// history, and task queues in Redis, ready for SchedulerDistributed with
// workers from NewRedisWorker on the same server.
func NewRedisEngine(client *redis.Client) Engine {
	return NewRedisEngineWithObserver(client, nil)
}

// NewRedisEngineWithObserver returns a Redis-backed Engine with the given
// Observer.
func NewRedisEngineWithObserver(client *redis.Client, obs Observer) Engine {
	return NewEngine(EngineConfig{
		Store:    runstore.NewRedisStore(client, "", ""),
		Events:   runstore.NewRedisEventStore(client, ""),
		Observer: obs,
		Tasks:    taskqueue.NewRedisQueue(client, "", "tasks"),
		Results:  taskqueue.NewRedisQueue(client, "", "results"),
	})
}

// Store constructors, for EngineConfig and Worker assembly.

// NewMemoryRunStore returns a process-local RunStore.
func NewMemoryRunStore() RunStore {
	return runstore.NewMemoryStore()
}

// NewFSRunStore returns a RunStore rooted at baseDir.
func NewFSRunStore(baseDir string) (RunStore, error) {
	return runstore.NewFSStore(baseDir)
}

// NewSQLiteRunStore returns a RunStore over db. workRoot is where node
// working directories live; empty means a temporary root removed by Close.
func NewSQLiteRunStore(db *sql.DB, workRoot string) (RunStore, error) {
	return runstore.NewSQLiteStore(db, workRoot)
}

// NewRedisRunStore returns a RunStore over client. An empty prefix means
// "grafo:".
func NewRedisRunStore(client *redis.Client, prefix, workRoot string) RunStore {
	return runstore.NewRedisStore(client, prefix, workRoot)
}

// Queue constructors.

// NewInMemoryQueue returns a process-local Queue with the given capacity.
func NewInMemoryQueue(capacity int) Queue {
	return taskqueue.NewInMemoryQueue(capacity)
}

// NewSQLiteQueue returns a durable named Queue stored in db. Queues with
// different names share one table without seeing each other's tasks.
func NewSQLiteQueue(db *sql.DB, name string) (Queue, error) {
	return taskqueue.NewSQLiteQueue(db, name)
}

// NewRedisQueue returns a named Queue backed by a Redis list. An empty
// prefix means "grafo:queue:".
func NewRedisQueue(client *redis.Client, prefix, name string) Queue {
	return taskqueue.NewRedisQueue(client, prefix, name)
}

// Worker constructors.

// NewWorker returns a Worker that executes steps from reg, persisting
// results in store and exchanging tasks over the two queues. The queues
// and the store must be shared with the engine that dispatches the run.
func NewWorker(reg *Registry, store RunStore, tasks, results Queue, opts ...worker.Option) *Worker {
	return worker.New(reg, store, tasks, results, opts...)
}

// NewSQLiteWorker returns a Worker wired to the store and queues of a
// SQLite-backed engine sharing the same database.
func NewSQLiteWorker(db *sql.DB, reg *Registry, opts ...worker.Option) (*Worker, error) {
	store, err := runstore.NewSQLiteStore(db, "")
	if err != nil {
		return nil, err
	}
	tasks, err := taskqueue.NewSQLiteQueue(db, "tasks")
	if err != nil {
		return nil, err
	}
	results, err := taskqueue.NewSQLiteQueue(db, "results")
	if err != nil {
		return nil, err
	}
	return worker.New(reg, store, tasks, results, opts...), nil
}

// NewRedisWorker returns a Worker wired to the store and queues of an
// engine from NewRedisEngine on the same server.
func NewRedisWorker(client *redis.Client, reg *Registry, opts ...worker.Option) *Worker {
	return worker.New(reg,
		runstore.NewRedisStore(client, "", ""),
		taskqueue.NewRedisQueue(client, "", "tasks"),
		taskqueue.NewRedisQueue(client, "", "results"),
		opts...,
	)
}

// Run executes g on eng. It is a plain forward, kept so call sites read
// naturally next to the package-level constructors.
func Run(ctx context.Context, eng Engine, g *Graph, cfg RunConfig) (*RunReport, error) {
	return eng.Run(ctx, g, cfg)
}
