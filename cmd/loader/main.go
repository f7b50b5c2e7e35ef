// Command kaijs-loader drains the spool, validates each envelope,
// dispatches it to a family handler, and writes the resulting document-DB
// and search-index updates (§4.4-§4.8). It owns every stateful
// collaborator except the broker: Postgres, the schema catalog, and the
// search backend.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hashicorp/go-hclog"

	kaijsconfig "github.com/fedora-ci/kaijs-go/internal/config"
	"github.com/fedora-ci/kaijs-go/internal/logging"
	"github.com/fedora-ci/kaijs-go/internal/version"
	"github.com/fedora-ci/kaijs-go/pkg/artifact"
	"github.com/fedora-ci/kaijs-go/pkg/buildsys"
	"github.com/fedora-ci/kaijs-go/pkg/dispatch"
	"github.com/fedora-ci/kaijs-go/pkg/docdb"
	"github.com/fedora-ci/kaijs-go/pkg/envelope"
	"github.com/fedora-ci/kaijs-go/pkg/handlers"
	"github.com/fedora-ci/kaijs-go/pkg/kaierrors"
	"github.com/fedora-ci/kaijs-go/pkg/schemacatalog"
	"github.com/fedora-ci/kaijs-go/pkg/searchindex"
	"github.com/fedora-ci/kaijs-go/pkg/searchindex/adapters/bleve"
	"github.com/fedora-ci/kaijs-go/pkg/searchindex/adapters/meilisearch"
	"github.com/fedora-ci/kaijs-go/pkg/spool"
	"github.com/fedora-ci/kaijs-go/pkg/validate"
)

// sweepInterval is the cadence the 15-day validation-errors TTL (§6.3) is
// swept at; the TTL itself is enforced inside docdb.InvalidSink.
const sweepInterval = time.Hour

func main() {
	configPath := flag.String("config", "", "path to an optional HCL config overlay")
	flag.Parse()

	log := logging.New("loader")
	log.Info("starting kaijs-loader", "version", version.String())

	cfg, err := kaijsconfig.Load(*configPath)
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGABRT)
	go func() {
		sig := <-sigCh
		log.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	db, err := docdb.Connect(docdb.ConnConfig{RawDSN: cfg.PostgresDSN}, log)
	if err != nil {
		log.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	if err := docdb.Migrate(cfg.PostgresDSN, cfg.MigrationsPath); err != nil {
		log.Error("run migrations", "error", err)
		os.Exit(1)
	}

	store := docdb.NewStore(db)
	invalidSink := docdb.NewInvalidSink(db)

	backend, err := openSearchBackend(ctx, cfg, log)
	if err != nil {
		log.Error("open search backend", "error", err)
		os.Exit(1)
	}

	catalog, err := openSchemaCatalog(ctx, cfg, log)
	if err != nil {
		log.Error("open schema catalog", "error", err)
		os.Exit(1)
	}
	catalog.StartRefresh(ctx)
	log.Info("waiting for schema catalog to become ready")
	select {
	case <-catalog.Ready():
	case <-ctx.Done():
		os.Exit(0)
	}

	validator := validate.New(catalog)
	buildsysClient := buildsys.NewXMLRPCClient(cfg.BuildsysEndpoint)
	registry := handlers.DefaultRegistry(store, cfg.IndexPrefix, buildsysClient)

	sp, err := spool.Open(cfg.SpoolDir, log)
	if err != nil {
		log.Error("open spool", "error", err)
		os.Exit(1)
	}
	defer sp.Close()

	var pendingMu pendingTracker
	scheduler := searchindex.NewScheduler(backend, func(batch []searchindex.Update, err error) {
		pendingMu.resolve(batch, err, log)
	}, log)

	go sweepLoop(ctx, invalidSink, log)

	run(ctx, sp, validator, registry, store, scheduler, invalidSink, &pendingMu, cfg.IndexPrefix, log)

	scheduler.Flush(context.Background())
	scheduler.Close()
}

func openSearchBackend(ctx context.Context, cfg *kaijsconfig.Config, log hclog.Logger) (searchindex.BulkIndex, error) {
	switch cfg.SearchBackend {
	case "meilisearch":
		return meilisearch.New(cfg.MeiliHost, cfg.MeiliAPIKey), nil
	default:
		return bleve.New(cfg.BleveBasePath, log), nil
	}
}

func openSchemaCatalog(ctx context.Context, cfg *kaijsconfig.Config, log hclog.Logger) (*schemacatalog.Catalog, error) {
	var fallback schemacatalog.OfflineFallback
	if cfg.SchemaS3Bucket != "" {
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, err
		}
		fallback = schemacatalog.NewS3Fallback(awss3.NewFromConfig(awsCfg), cfg.SchemaS3Bucket, cfg.SchemaS3Key)
	}
	return schemacatalog.Open(schemacatalog.Config{
		RepoURL:   cfg.SchemaRepoURL,
		LocalPath: cfg.SchemaLocalPath,
	}, log, fallback)
}

// pendingTracker correlates in-flight search-index Updates back to the
// spool Claimed entries they originated from, so a failed bulk flush rolls
// back every envelope in the batch instead of silently losing track of
// them (§4.8, "no partial commit").
type pendingTracker struct {
	mu      sync.Mutex
	entries map[string]*spool.Claimed
}

func run(ctx context.Context, sp *spool.Spool, validator *validate.Validator, registry *dispatch.Registry,
	store *docdb.Store, scheduler *searchindex.Scheduler, invalidSink *docdb.InvalidSink,
	tracker *pendingTracker, indexPrefix string, log hclog.Logger) {

	tracker.entries = map[string]*spool.Claimed{}

	for {
		if ctx.Err() != nil {
			return
		}

		claimed, err := sp.Tpop()
		if err != nil {
			log.Error("spool pop failed", "error", err)
			return
		}
		if claimed == nil {
			select {
			case <-ctx.Done():
				return
			case <-sp.Notify():
			case <-time.After(time.Second):
			}
			continue
		}

		if exit := process(ctx, claimed, validator, registry, store, scheduler, invalidSink, tracker, indexPrefix, log); exit {
			return
		}
	}
}

// process implements one §5 iteration: validate, dispatch, write, and
// commit or roll back, applying the §7 failure-routing table. Returns true
// if the loader must exit (fatal-exit-class error).
func process(ctx context.Context, claimed *spool.Claimed, validator *validate.Validator,
	registry *dispatch.Registry, store *docdb.Store, scheduler *searchindex.Scheduler,
	invalidSink *docdb.InvalidSink, tracker *pendingTracker, indexPrefix string, log hclog.Logger) bool {

	env := claimed.Env

	// Envelope-shape violations are committed (dropped) and logged, never
	// routed to the invalid sink (§7).
	if err := env.ValidateShape(); err != nil {
		log.Warn("dropping envelope with invalid shape", "topic", env.BrokerTopic, "error", err)
		commit(claimed, log)
		return false
	}

	if err := validator.Validate(env); err != nil {
		return handleEnvelopeError(ctx, claimed, env, err, invalidSink, scheduler, tracker, indexPrefix, log)
	}

	handler, err := registry.Lookup(env.BrokerTopic)
	if err != nil {
		return handleEnvelopeError(ctx, claimed, env, err, invalidSink, scheduler, tracker, indexPrefix, log)
	}

	if err := writeDocument(ctx, store, handler, env); err != nil {
		return handleEnvelopeError(ctx, claimed, env, err, invalidSink, scheduler, tracker, indexPrefix, log)
	}

	updates, err := handler.Index(ctx, env)
	if err != nil {
		return handleEnvelopeError(ctx, claimed, env, err, invalidSink, scheduler, tracker, indexPrefix, log)
	}

	tracker.mu.Lock()
	for _, u := range updates {
		tracker.entries[u.SpoolID] = claimed
		scheduler.Enqueue(ctx, u)
	}
	tracker.mu.Unlock()

	return false
}

// writeDocument runs the document-DB half of a handler through the §4.7
// OCC loop. A handler's DocDB method already performs its own
// find_or_create and ignores Store.Write's `current` parameter entirely:
// each OCC attempt independently re-derives the identity and re-reads the
// current document from inside handler.DocDB, so a lost CAS race is
// retried correctly without any state threaded through Compute.
func writeDocument(ctx context.Context, store *docdb.Store, handler dispatch.Handler, env envelope.SpoolMessage) error {
	doc, err := handler.DocDB(ctx, env)
	if err != nil {
		return err
	}
	id := artifact.Identity{Type: doc.Type, ID: doc.AID}
	_, err = store.Write(ctx, id, func(ctx context.Context, current *artifact.Document) (*artifact.Document, error) {
		return handler.DocDB(ctx, env)
	})
	return err
}

// handleEnvelopeError applies the §7 failure-routing table (envelope-shape
// violations are handled earlier, in process): commit for NoNeedToProcess
// errors, invalid-sink recording (Postgres
// validation-errors + raw-messages, and a search-index invalid-messages
// document) for the schema/validation/thread-id/size/no-handler class, and
// fatal exit for connection-lost or OCC exhaustion.
func handleEnvelopeError(ctx context.Context, claimed *spool.Claimed, env envelope.SpoolMessage, err error,
	invalidSink *docdb.InvalidSink, scheduler *searchindex.Scheduler, tracker *pendingTracker,
	indexPrefix string, log hclog.Logger) bool {

	kind := kaierrors.KindOf(err)

	switch kind {
	case kaierrors.KindNoNeedToProcess:
		log.Debug("handler declined message", "topic", env.BrokerTopic, "error", err)
		commit(claimed, log)
		return false

	case kaierrors.KindTransientConflict, kaierrors.KindConnectionLost:
		log.Error("fatal pipeline error, exiting", "error", err)
		if rerr := claimed.Rollback(); rerr != nil {
			log.Error("rollback after fatal error", "error", rerr)
		}
		return true
	}

	if kaierrors.IsInvalidSink(err) || kind == kaierrors.KindNoAssociatedHandler {
		body := rawBody(env)

		if rerr := invalidSink.RecordValidationError(ctx, env.SpoolID, env.BrokerTopic, kind.String(), err.Error(), body); rerr != nil {
			log.Error("record invalid sink entry", "error", rerr)
		}
		raw, merr := env.Marshal()
		if merr != nil {
			log.Error("marshal envelope for raw-messages record", "error", merr)
		} else if rerr := invalidSink.RecordRawMessage(ctx, env.SpoolID, env.BrokerMsgID, env.BrokerTopic, raw); rerr != nil {
			log.Error("record raw message", "error", rerr)
		}
		log.Warn("envelope routed to invalid sink", "topic", env.BrokerTopic, "kind", kind.String(), "error", err)

		// Enqueue the invalid-messages index document and defer the spool
		// commit to the scheduler's flush callback (pendingTracker.resolve),
		// mirroring the success path so the index write and the commit
		// never diverge (§4.8, "no partial commit").
		update := searchindex.Update{
			SpoolID: env.SpoolID,
			DocID:   env.SpoolID,
			Index:   searchindex.InvalidMessagesIndex(indexPrefix),
			Doc: map[string]interface{}{
				"broker_topic": env.BrokerTopic,
				"err_kind":     kind.String(),
				"err_msg":      err.Error(),
				"raw":          body,
			},
			DocAsUpsert: true,
		}
		tracker.mu.Lock()
		tracker.entries[update.SpoolID] = claimed
		scheduler.Enqueue(ctx, update)
		tracker.mu.Unlock()
		return false
	}

	// Anything else unclassified: commit and log, never retried (§7).
	log.Warn("dropping envelope after unclassified error", "topic", env.BrokerTopic, "error", err)
	commit(claimed, log)
	return false
}

func commit(claimed *spool.Claimed, log hclog.Logger) {
	if err := claimed.Commit(); err != nil {
		log.Error("commit spool entry", "error", err)
	}
}

func rawBody(env envelope.SpoolMessage) string {
	data, err := env.Marshal()
	if err != nil {
		return ""
	}
	return searchindex.TruncateIfTooLarge(string(data))
}

// resolve is the search-index Scheduler's FlushHandler: on success, every
// envelope whose Updates were in the batch is committed; on failure, every
// one is rolled back, so it is retried after a restart, and the loader exits
// non-zero (§4.8, "no partial commit").
func (t *pendingTracker) resolve(batch []searchindex.Update, err error, log hclog.Logger) {
	t.mu.Lock()
	defer t.mu.Unlock()

	seen := map[*spool.Claimed]bool{}
	for _, u := range batch {
		claimed, ok := t.entries[u.SpoolID]
		delete(t.entries, u.SpoolID)
		if !ok || seen[claimed] {
			continue
		}
		seen[claimed] = true
		if err != nil {
			if rerr := claimed.Rollback(); rerr != nil {
				log.Error("rollback after failed bulk flush", "error", rerr)
			}
			continue
		}
		commit(claimed, log)
	}

	if err != nil {
		log.Error("bulk index flush failed, exiting", "error", err)
		os.Exit(1)
	}
}

func sweepLoop(ctx context.Context, invalidSink *docdb.InvalidSink, log hclog.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := invalidSink.SweepExpiredValidationErrors(ctx)
			if err != nil {
				log.Warn("sweep expired validation errors", "error", err)
				continue
			}
			if n > 0 {
				log.Info("swept expired validation errors", "count", n)
			}
		}
	}
}
