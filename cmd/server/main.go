// Command server runs the archive-core background processes: the
// upload worker, the mirror synchronizer, the deletion reaper, and the
// admin HTTP surface. It is the single-process reference deployment
// the scheduler package (spec §4.7) was designed for; a production
// deployment can split each Step across its own process sharing the
// same document store instead.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/kenneth/splitstore/internal/adminhttp"
	"github.com/kenneth/splitstore/internal/audit"
	"github.com/kenneth/splitstore/internal/config"
	"github.com/kenneth/splitstore/internal/coordination"
	"github.com/kenneth/splitstore/internal/cryptocore"
	"github.com/kenneth/splitstore/internal/debug"
	"github.com/kenneth/splitstore/internal/metrics"
	"github.com/kenneth/splitstore/internal/mirror"
	"github.com/kenneth/splitstore/internal/provider"
	"github.com/kenneth/splitstore/internal/provider/bot"
	"github.com/kenneth/splitstore/internal/provider/webhook"
	"github.com/kenneth/splitstore/internal/reaper"
	"github.com/kenneth/splitstore/internal/scheduler"
	"github.com/kenneth/splitstore/internal/store"
	"github.com/kenneth/splitstore/internal/telemetry"
	"github.com/kenneth/splitstore/internal/upload"
)

func main() {
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		debug.SetEnabled(true)
	}

	cfg := config.Load()
	if cfg.MasterSecret == "" {
		logger.Fatal("MASTER_SECRET is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handles, err := config.LoadHandleRegistry(cfg.ProviderHandlesFile)
	if err != nil {
		logger.WithError(err).Fatal("failed to load provider handle registry")
	}
	defer handles.Close()

	providers := buildProviderRegistry(handles)

	keyManager := cryptocore.NewStaticKeyManager(cfg.MasterSecret)
	key, err := keyManager.ActiveKey(ctx)
	if err != nil {
		logger.WithError(err).Fatal("failed to derive encryption key")
	}

	docStore := store.NewMemStore()

	auditLogger, err := audit.NewLoggerFromConfig(cfg.Audit)
	if err != nil {
		logger.WithError(err).Fatal("failed to build audit logger")
	}
	defer auditLogger.Close()

	tel, err := telemetry.NewProvider(ctx, "splitstore")
	if err != nil {
		logger.WithError(err).Fatal("failed to build telemetry provider")
	}
	defer tel.Shutdown(context.Background())

	promMetrics := metrics.NewMetrics()
	promMetrics.StartSystemMetricsCollector()
	promMetrics.SetHardwareAccelerationStatus("aes-ni", cfg.Hardware.EnableAESNI && cryptocore.HasAESHardwareSupport())

	bufferPool := cryptocore.NewBufferPool(cfg.ChunkSizeBytes)

	pipeline := &upload.Pipeline{
		Store:       docStore,
		Providers:   providers,
		Key:         key,
		Concurrency: cfg.UploadPartsConcurrency,
		NWebhooks:   len(handles.Handles("webhook")),
		BufferPool:  bufferPool,
	}

	worker := &upload.Worker{
		Store:     docStore,
		Pipeline:  pipeline,
		Gate:      upload.NewDiskGate(cfg.StorageRoot, cfg.DiskSoftLimitGB, cfg.DiskHardLimitGB),
		CacheRoot: cfg.CacheRoot,
		Log:       logger.WithField("component", "upload"),
		Audit:     auditLogger,
	}

	recovery := &upload.Recovery{
		Store:      docStore,
		StaleAfter: time.Duration(cfg.ProcessingStaleMinutes) * time.Minute,
	}
	if _, err := recovery.RunStartupRecovery(ctx); err != nil {
		logger.WithError(err).Warn("startup recovery failed")
	}

	reap := &reaper.Reaper{
		Store:           docStore,
		Providers:       providers,
		RetentionWindow: cfg.RetentionCutoff(),
		Log:             logger.WithField("component", "reaper"),
		Audit:           auditLogger,
	}

	sync := &mirror.Synchronizer{
		Store:     docStore,
		Providers: providers,
		Fetch:     provider.HTTPFetch,
		Log:       logger.WithField("component", "mirror"),
		Audit:     auditLogger,
	}

	var lock *coordination.Lock
	if cfg.CoordinationRedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.CoordinationRedisAddr})
		lock = coordination.NewLock(rdb, "splitstore:scheduler", 30*time.Second)
	}

	sched := &scheduler.Scheduler{
		TickInterval: cfg.WorkerPollInterval,
		Log:          logger.WithField("component", "scheduler"),
		Steps: []scheduler.Step{
			{Name: "stale_reset", Run: func(ctx context.Context) (bool, error) {
				n, err := recovery.RunStaleReset(ctx, time.Now())
				return n > 0, err
			}},
			{Name: "upload", Run: worker.ProcessNext},
			{Name: "mirror_prepare", Run: sync.Prepare},
			{Name: "mirror_sync", Run: sync.Sync},
			{Name: "reap", Run: func(ctx context.Context) (bool, error) {
				found, err := reap.ProcessNext(ctx, time.Now())
				return found, err
			}},
		},
	}

	if lock != nil {
		sched.Steps = guardWithLock(sched.Steps, lock, logger)
	}

	go sched.Run(ctx)

	adminSrv := &adminhttp.Server{Store: docStore, Metrics: promMetrics, Logger: logger}
	httpSrv := &http.Server{Addr: cfg.AdminHTTPAddr, Handler: adminhttp.NewRouter(adminSrv)}

	go func() {
		logger.WithField("addr", cfg.AdminHTTPAddr).Info("admin http listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("admin http server stopped")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("admin http shutdown error")
	}
}

// buildProviderRegistry wires the hot-reloaded handle registry into
// concrete webhook/bot adapters (spec §4.1 provider selection).
func buildProviderRegistry(handles *config.HandleRegistry) *provider.Registry {
	webhookHandles := map[string]string{}
	for _, h := range handles.Handles("webhook") {
		webhookHandles[h.ID] = h.OutboundURL
	}

	botHandles := map[string]bot.Handle{}
	for _, h := range handles.Handles("bot") {
		token, chatID := splitBotCredential(h.Credential)
		botHandles[h.ID] = bot.Handle{APIBase: h.OutboundURL, Token: token, ChatID: chatID}
	}

	var webhookAdapter provider.Provider
	if len(webhookHandles) > 0 {
		webhookAdapter = webhook.New(webhookHandles)
	}
	var botAdapter provider.Provider
	if len(botHandles) > 0 {
		botAdapter = bot.New(botHandles)
	}

	return provider.NewRegistry(webhookAdapter, botAdapter, len(webhookHandles))
}

// splitBotCredential unpacks a handle registry credential of the form
// "token:chatID" into its two parts.
func splitBotCredential(credential string) (token, chatID string) {
	parts := strings.SplitN(credential, ":", 2)
	if len(parts) != 2 {
		return credential, ""
	}
	return parts[0], parts[1]
}

// guardWithLock wraps every step so only the process holding the
// cross-instance coordination lock executes it, letting more than one
// scheduler replica run without duplicating a tick's work (spec §4.7,
// §9 design notes on coordination being an optimization, not the
// correctness mechanism).
func guardWithLock(steps []scheduler.Step, lock *coordination.Lock, logger *logrus.Logger) []scheduler.Step {
	token := fmt.Sprintf("pid-%d", os.Getpid())
	guarded := make([]scheduler.Step, len(steps))
	for i, step := range steps {
		step := step
		guarded[i] = scheduler.Step{
			Name: step.Name,
			Run: func(ctx context.Context) (bool, error) {
				acquired, err := lock.TryAcquire(ctx, token)
				if err != nil {
					logger.WithError(err).Warn("coordination lock unavailable, running step unguarded")
					return step.Run(ctx)
				}
				if !acquired {
					return false, nil
				}
				defer lock.Release(ctx, token)
				return step.Run(ctx)
			},
		}
	}
	return guarded
}
