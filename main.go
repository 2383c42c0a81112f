package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	alertshttp "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/alerts/http"
	alertsnotify "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/alerts/notify"
	apihttp "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/api/http"
	"github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/audit"
	"github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/auth"
	"github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/eventing"
	healthapp "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/health/application"
	masterdatarepo "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/masterdata/infrastructure/postgres"
	"github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/observability/metrics"
	paretoapp "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/pareto/application"
	"github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/reports"
	rulapp "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/rul/application"
	scoringapp "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/scoring/application"
	scoring "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/scoring/domain"
	"github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/scoring/infrastructure/model"
	tasksapp "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/tasks/application"
	tasksrepo "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/tasks/infrastructure/postgres"
	telemetryrepo "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/telemetry/infrastructure/postgres"
	"github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/telemetry/interfaces/ingest"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init()
	bus := eventing.NewInMemoryBus()

	readingRepo := telemetryrepo.NewReadingRepository(db)
	taskRepo := tasksrepo.NewTaskRepository(db)
	machineRepo := masterdatarepo.NewMachineRepository(db)
	auditRepo := audit.NewRepository(db)
	machineChecker := auth.NewRegisteredMachineChecker(db)

	scoringCfg, err := scoringapp.LoadConfig()
	if err != nil {
		logger.Fatalf("scoring config error: %v", err)
	}
	scoringOpts := []scoringapp.ServiceOption{}
	if scoringCfg.ModelURL != "" {
		client, err := model.NewClient(scoringCfg.ModelURL, scoringCfg.ModelTimeout)
		if err != nil {
			logger.Fatalf("model client error: %v", err)
		}
		trained, err := scoring.NewTrainedScorer(client)
		if err != nil {
			logger.Fatalf("trained scorer error: %v", err)
		}
		scoringOpts = append(scoringOpts, scoringapp.WithTrainedScorer(trained))
	}
	scoringService, err := scoringapp.NewService(scoringCfg, readingRepo, bus, logger, scoringOpts...)
	if err != nil {
		logger.Fatalf("scoring service error: %v", err)
	}

	healthService, err := healthapp.NewService(readingRepo, logger)
	if err != nil {
		logger.Fatalf("health service error: %v", err)
	}
	healthService.Register(bus)

	rulService, err := rulapp.NewService(readingRepo, logger, rulapp.WithBus(bus), rulapp.WithBaselines(scoringService))
	if err != nil {
		logger.Fatalf("rul service error: %v", err)
	}

	taskService, err := tasksapp.NewService(taskRepo, bus, logger)
	if err != nil {
		logger.Fatalf("task service error: %v", err)
	}
	taskService.Register(bus)

	paretoService, err := paretoapp.NewService(readingRepo, taskRepo, logger)
	if err != nil {
		logger.Fatalf("pareto service error: %v", err)
	}

	broker := alertshttp.NewSSEBroker(logger)
	broker.Register(bus)
	if cfg.WebhookURL != "" {
		channel, err := alertsnotify.NewWebhookChannel(cfg.WebhookURL, cfg.WebhookTimeout)
		if err != nil {
			logger.Fatalf("alert webhook error: %v", err)
		}
		notifier, err := alertsnotify.NewNotifier(channel,
			alertsnotify.WithCooldown(cfg.NotifyCooldown),
			alertsnotify.WithDedupeWindow(cfg.NotifyDedupeWindow))
		if err != nil {
			logger.Fatalf("alert notifier error: %v", err)
		}
		notifier.Register(bus, logger)
	}

	ingestHandler, err := ingest.NewHandler(scoringService, logger)
	if err != nil {
		logger.Fatalf("ingest handler error: %v", err)
	}
	apiHandler, err := apihttp.NewHandler(readingRepo, healthService, rulService, paretoService, taskService, machineRepo,
		apihttp.WithAuditor(auditRepo), apihttp.WithMachineChecker(machineChecker))
	if err != nil {
		logger.Fatalf("api handler error: %v", err)
	}
	exportHandler, err := reports.NewHandler(paretoService)
	if err != nil {
		logger.Fatalf("export handler error: %v", err)
	}

	go rulService.Run(context.Background(), cfg.RULInterval)
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for tick := range ticker.C {
			if evicted := scoringService.Sweep(tick.UTC()); evicted > 0 {
				logger.Printf("scoring: evicted %d idle calibration windows", evicted)
			}
		}
	}()

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, []string{"/ingest/"})
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.Handle("/ingest/readings", auth.IngestAuthMiddleware([]byte(cfg.IngestSecret), ingestHandler))
	mux.Handle("/api/v1/alerts/stream", alertshttp.NewStreamHandler(broker))
	mux.Handle("/api/v1/exports/", exportHandler)
	mux.Handle("/api/v1/", apiHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL        string
	HTTPAddr           string
	JWTSecret          string
	IngestSecret       string
	WebhookURL         string
	WebhookTimeout     time.Duration
	NotifyCooldown     time.Duration
	NotifyDedupeWindow time.Duration
	RULInterval        time.Duration
	SweepInterval      time.Duration
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:        getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:           getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:          getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		IngestSecret:       getenvDefault("INGEST_HMAC_SECRET", ""),
		WebhookURL:         getenvDefault("PDM_WEBHOOK_URL", ""),
		WebhookTimeout:     getenvDuration("PDM_WEBHOOK_TIMEOUT", 5*time.Second),
		NotifyCooldown:     getenvDuration("PDM_NOTIFY_COOLDOWN", 0),
		NotifyDedupeWindow: getenvDuration("PDM_NOTIFY_DEDUP_WINDOW", 0),
		RULInterval:        getenvDuration("PDM_RUL_INTERVAL", rulapp.DefaultInterval),
		SweepInterval:      getenvDuration("PDM_SWEEP_INTERVAL", time.Minute),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps SSE streaming working through the logging wrapper.
func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
