// Package wire provides dependency injection for the smartpos application.
// It creates singleton services with lazy initialization.
package wire

import (
	"database/sql"
	"log"
	"sync"

	"github.com/MythicalCosmic/smart-pos/internal/adapters/httpapi"
	"github.com/MythicalCosmic/smart-pos/internal/adapters/sqlite"
	"github.com/MythicalCosmic/smart-pos/internal/adapters/zmqtransport"
	"github.com/MythicalCosmic/smart-pos/internal/app"
	"github.com/MythicalCosmic/smart-pos/internal/config"
	"github.com/MythicalCosmic/smart-pos/internal/core/backoff"
	"github.com/MythicalCosmic/smart-pos/internal/db"
	"github.com/MythicalCosmic/smart-pos/internal/ports/primary"
	"github.com/MythicalCosmic/smart-pos/internal/ports/secondary"
)

var (
	cfg      *config.Config
	database *sql.DB
	logger   *log.Logger

	engine   *app.EngineService
	worker   *app.Worker
	receiver *app.ReceiverService

	queueRepo  *sqlite.ChangeQueueRepository
	statusRepo *sqlite.SyncStatusRepository
	auditRepo  *sqlite.ConflictAuditRepository

	once sync.Once
)

// Configure sets the configuration used by the lazy initializers. Must be
// called before the first accessor; the CLI root command does this.
func Configure(c *config.Config, l *log.Logger) {
	cfg = c
	logger = l
}

// Config returns the active configuration.
func Config() *config.Config {
	if cfg == nil {
		log.Fatal("wire: Configure was not called")
	}
	return cfg
}

// Engine returns the singleton sync engine for this branch.
func Engine() *app.EngineService {
	once.Do(initServices)
	return engine
}

// SyncWorker returns the singleton background worker.
func SyncWorker() *app.Worker {
	once.Do(initServices)
	return worker
}

// Receiver returns the singleton cloud receiver service.
func Receiver() *app.ReceiverService {
	once.Do(initServices)
	return receiver
}

// QueueRepo returns the change queue repository for operator commands.
func QueueRepo() *sqlite.ChangeQueueRepository {
	once.Do(initServices)
	return queueRepo
}

// AuditRepo returns the conflict audit repository for operator commands.
func AuditRepo() *sqlite.ConflictAuditRepository {
	once.Do(initServices)
	return auditRepo
}

// initServices initializes all services and their dependencies.
// This is called once via sync.Once.
func initServices() {
	c := Config()
	if logger == nil {
		logger = log.Default()
	}

	var err error
	database, err = db.Open(db.DefaultPath(c.DataDir))
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}

	// Repository adapters (secondary ports)
	queueRepo = sqlite.NewChangeQueueRepository(database, c.BranchID)
	statusRepo = sqlite.NewSyncStatusRepository(database)
	auditRepo = sqlite.NewConflictAuditRepository(database)
	store := sqlite.NewEntityStore(database)
	sessions := sqlite.NewSessionRepository(database)
	feed := sqlite.NewCloudFeedRepository(database)

	// Branch-side engine and worker
	engine = app.NewEngineService(c.BranchID, queueRepo, statusRepo, store, sessions)
	registerSyncables(engine)

	worker = app.NewWorker(app.WorkerOptions{
		Branch:       c.BranchID,
		PushInterval: c.Sync.PushInterval,
		BatchSize:    c.Sync.BatchSize,
		PullLimit:    c.Sync.PullLimit,
		StaleTimeout: c.Sync.StaleTimeout,
		Backoff: backoff.Policy{
			Base:   c.Sync.BackoffBase,
			Max:    c.Sync.BackoffMax,
			Jitter: 0.2,
		},
		Logger: componentLogger("worker"),
	}, engine.Registry(), queueRepo, statusRepo, store, auditRepo, cloudTransport(c))

	// Cloud-side receiver shares the same store wiring; in cloud mode the
	// entities table is the merged cross-branch store.
	receiver = app.NewReceiverService(engine.Registry(), feed, store, auditRepo, c.Cloud.AllowedBranchTokens, componentLogger("receiver"))
}

// registerSyncables declares the POS entity types in dependency order:
// parents before the records that reference them.
func registerSyncables(e *app.EngineService) {
	for _, entityType := range []string{
		"user",
		"category",
		"product",
		"customer",
		"table",
		"order",
		"order_item",
	} {
		e.RegisterSyncable(entityType, nil, primary.SyncableOptions{})
	}
	// Financial records are append-only: conflicting rows are both kept.
	for _, entityType := range []string{"payment", "cash_collection"} {
		e.RegisterSyncable(entityType, nil, primary.SyncableOptions{AppendOnly: true})
	}
}

// componentLogger shares the root logger's output with a per-component
// prefix.
func componentLogger(name string) *log.Logger {
	return log.New(logger.Writer(), "["+name+"] ", logger.Flags())
}

func cloudTransport(c *config.Config) secondary.CloudTransport {
	switch c.Sync.Transport {
	case "zmq":
		return zmqtransport.NewClient(c.Sync.Endpoint, c.BranchID, c.Sync.Token, c.Sync.RequestTimeout)
	default:
		return httpapi.NewClient(c.Sync.Endpoint, c.BranchID, c.Sync.Token, c.Sync.RequestTimeout)
	}
}

// HTTPServer returns a new cloud HTTP server over the receiver.
func HTTPServer() *httpapi.Server {
	return httpapi.NewServer(Receiver(), componentLogger("http"))
}

// ZMQServer returns a new cloud ZeroMQ server over the receiver.
func ZMQServer() *zmqtransport.Server {
	return zmqtransport.NewServer(Receiver(), componentLogger("zmq"))
}
