package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/Yonad91/vital-events-sub002/internal/handlers"
	"github.com/Yonad91/vital-events-sub002/internal/platform/artifacts"
	"github.com/Yonad91/vital-events-sub002/internal/platform/auth"
	"github.com/Yonad91/vital-events-sub002/internal/platform/config"
	pfirestore "github.com/Yonad91/vital-events-sub002/internal/platform/firestore"
	"github.com/Yonad91/vital-events-sub002/internal/platform/idempotency"
	"github.com/Yonad91/vital-events-sub002/internal/platform/jobs"
	"github.com/Yonad91/vital-events-sub002/internal/platform/metrics"
	"github.com/Yonad91/vital-events-sub002/internal/platform/observability"
	"github.com/Yonad91/vital-events-sub002/internal/platform/pdf"
	"github.com/Yonad91/vital-events-sub002/internal/platform/secrets"
	"github.com/Yonad91/vital-events-sub002/internal/repositories"
	firestoreRepo "github.com/Yonad91/vital-events-sub002/internal/repositories/firestore"
	"github.com/Yonad91/vital-events-sub002/internal/services"
)

const (
	verifyRequestsPerMinute  = 60
	previewRequestsPerMinute = 120
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("registry")

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.Names()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	if cfg.Certificates.SigningKey == "" {
		logger.Warn("certificate signing key not configured; QR payloads will be unsigned")
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		if err := firestoreProvider.Close(); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier)

	eventRepo, err := firestoreRepo.NewEventRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise event repository", zap.Error(err))
	}
	userRepo, err := firestoreRepo.NewUserRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise user repository", zap.Error(err))
	}
	certificateRepo, err := firestoreRepo.NewCertificateRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise certificate repository", zap.Error(err))
	}
	auditRepo, err := firestoreRepo.NewAuditLogRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise audit log repository", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registryMetrics := metrics.New(registry)

	artifactStore, err := artifacts.NewOSStore(cfg.Storage.CertificatesDir)
	if err != nil {
		logger.Fatal("failed to initialise certificate store", zap.Error(err))
	}
	if err := artifactStore.EnsureWritable(ctx); err != nil {
		logger.Warn("certificate directory not writable; generation will fail until fixed",
			zap.String("dir", cfg.Storage.CertificatesDir), zap.Error(err))
	}
	photos := services.NewPhotoLocator(osfs.New(cfg.Storage.UploadsDir))

	renderLogger := logger.Named("render")
	engine := pdf.NewBreakerEngine(
		pdf.NewChromeEngine(
			pdf.WithExecPath(cfg.Certificates.ChromePath),
			pdf.WithRenderTimeout(cfg.Certificates.RenderTimeout),
			pdf.WithPaperSize(pdf.PaperSizeFor(cfg.Certificates.PageSize)),
			pdf.WithLogger(renderLogger),
		),
		pdf.BreakerSettings{
			Failures: cfg.Certificates.BreakerFailures,
			Cooldown: cfg.Certificates.BreakerCooldown,
			OnStateChange: func(_, to gobreaker.State) {
				registryMetrics.SetBreakerState(breakerGauge(to))
			},
		},
		renderLogger,
	)

	certLogger := logger.Named("certificates")
	exporter, err := services.NewCertificateExporter(services.CertificateExporterDeps{
		Store:   artifactStore,
		Engine:  engine,
		Metrics: registryMetrics,
		Logger:  observability.EventLogger(renderLogger),
	})
	if err != nil {
		logger.Fatal("failed to initialise certificate exporter", zap.Error(err))
	}

	auditService, err := services.NewAuditLogService(services.AuditLogServiceDeps{
		Repository: auditRepo,
		Logger:     observability.EventLogger(logger.Named("audit")),
		HashSalt:   cfg.Audit.HashSalt,
	})
	if err != nil {
		logger.Fatal("failed to initialise audit log service", zap.Error(err))
	}

	var publisher services.CertificateEventPublisher
	if topicID := strings.TrimSpace(cfg.PubSub.CertificateTopic); topicID != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		topic := pubsubClient.Topic(topicID)
		defer topic.Stop()
		certificatePublisher, err := jobs.NewPubSubCertificatePublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise certificate publisher", zap.Error(err))
		}
		publisher = certificatePublisher
	}

	certificateService, err := services.NewCertificateService(services.CertificateServiceDeps{
		Events:        eventRepo,
		Users:         userRepo,
		Certificates:  certificateRepo,
		Photos:        photos,
		Exporter:      exporter,
		Store:         artifactStore,
		Audit:         auditService,
		Publisher:     publisher,
		Metrics:       registryMetrics,
		Logger:        observability.EventLogger(certLogger),
		PublicBaseURL: cfg.Certificates.PublicBaseURL,
		SigningKey:    cfg.Certificates.SigningKey,
	})
	if err != nil {
		logger.Fatal("failed to initialise certificate service", zap.Error(err))
	}

	verificationService, err := services.NewVerificationService(services.VerificationServiceDeps{
		Certificates: certificateRepo,
		Events:       eventRepo,
		Metrics:      registryMetrics,
		Logger:       observability.EventLogger(logger.Named("verification")),
		SigningKey:   cfg.Certificates.SigningKey,
	})
	if err != nil {
		logger.Fatal("failed to initialise verification service", zap.Error(err))
	}

	prefillService, err := services.NewPrefillService(services.PrefillServiceDeps{
		Events: eventRepo,
		Logger: observability.EventLogger(logger.Named("prefill")),
	})
	if err != nil {
		logger.Fatal("failed to initialise prefill service", zap.Error(err))
	}

	systemService, err := newSystemService(firestoreClient, artifactStore, fetcher, engine, cfg.Certificates.SigningKey != "", buildInfo)
	if err != nil {
		logger.Warn("health: system service init failed", zap.Error(err))
	}

	certificateOpts := []handlers.CertificateOption{handlers.WithVerifyRateLimit(verifyRequestsPerMinute, time.Minute)}
	if replayStore, err := idempotency.NewFirestoreStore(firestoreClient); err != nil {
		logger.Warn("idempotency: replay guard disabled", zap.Error(err))
	} else {
		certificateOpts = append(certificateOpts, handlers.WithGenerateMiddlewares(
			idempotency.Middleware(replayStore,
				idempotency.WithTTL(cfg.Certificates.ReplayTTL),
				idempotency.WithLogger(observability.EventLogger(logger.Named("idempotency"))),
			),
		))
	}
	certificateHandlers := handlers.NewCertificateHandlers(authenticator, certificateService, verificationService, certificateOpts...)
	officialBirthHandlers := handlers.NewOfficialBirthHandlers(certificateService, previewRequestsPerMinute)
	prefillHandlers := handlers.NewPrefillHandlers(authenticator, prefillService)
	eventHandlers := handlers.NewEventHandlers(authenticator, certificateService)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(systemService),
	)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithBasePath(envValues["REGISTRY_API_BASE_PATH"]),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithMetricsHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})),
		handlers.WithCertificateRoutes(certificateHandlers.Routes),
		handlers.WithOfficialBirthRoutes(officialBirthHandlers.Routes),
		handlers.WithPrefillRoutes(prefillHandlers.Routes),
		handlers.WithEventRoutes(eventHandlers.Routes),
	)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("vital events registry listening",
			zap.String("certificatesDir", cfg.Storage.CertificatesDir),
			zap.String("uploadsDir", cfg.Storage.UploadsDir))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["REGISTRY_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["REGISTRY_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func newSystemService(client *firestore.Client, store *artifacts.Store, fetcher *secrets.Fetcher, engine *pdf.BreakerEngine, signing bool, build services.BuildInfo) (services.SystemService, error) {
	checks := make([]repositories.DependencyCheck, 0, 3)
	if client != nil {
		c := client
		checks = append(checks, repositories.DependencyCheck{
			Name:     "firestore",
			Timeout:  1500 * time.Millisecond,
			Critical: true,
			Check: func(ctx context.Context) error {
				iter := c.Collections(ctx)
				_, err := iter.Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		})
	}
	if store != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:     "certificatesDir",
			Timeout:  time.Second,
			Critical: true,
			Check:    store.EnsureWritable,
		})
	}
	if fetcher != nil {
		const secretHealthReference = "secret://system/healthz?version=latest"
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil || errors.Is(err, secrets.ErrNotFound) {
					return nil
				}
				return err
			},
		})
	}
	repo, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil, err
	}
	deps := services.SystemServiceDeps{
		HealthRepository: repo,
		SigningEnabled:   signing,
		Clock:            time.Now,
		Build:            build,
	}
	if engine != nil {
		deps.RendererState = func() string { return rendererState(engine.State()) }
	}
	return services.NewSystemService(deps)
}

func rendererState(state gobreaker.State) string {
	switch state {
	case gobreaker.StateOpen:
		return services.RendererStateOpen
	case gobreaker.StateHalfOpen:
		return services.RendererStateHalfOpen
	default:
		return services.RendererStateClosed
	}
}

func breakerGauge(state gobreaker.State) int {
	switch state {
	case gobreaker.StateOpen:
		return metrics.BreakerOpen
	case gobreaker.StateHalfOpen:
		return metrics.BreakerHalfOpen
	default:
		return metrics.BreakerClosed
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	defaultProject := lookup("REGISTRY_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("REGISTRY_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("REGISTRY_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames makes the QR signing key mandatory outside local and test environments.
func requiredSecretNames(env map[string]string) []string {
	switch strings.ToLower(strings.TrimSpace(env["REGISTRY_SECURITY_ENVIRONMENT"])) {
	case "", "local", "test", "dev":
		return nil
	}
	return []string{"Certificates.SigningKey"}
}
