package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/auth"
	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/config"
	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/event"
	handler "github.com/Danreby/Back-end-Advanced-MVP-API/internal/handler/http"
	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/mail"
	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/repository"
	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/repository/postgres"
	redisrepo "github.com/Danreby/Back-end-Advanced-MVP-API/internal/repository/redis"
	"github.com/Danreby/Back-end-Advanced-MVP-API/internal/service"
	"github.com/Danreby/Back-end-Advanced-MVP-API/migrations"
	"github.com/Danreby/Back-end-Advanced-MVP-API/pkg/database"
	"github.com/Danreby/Back-end-Advanced-MVP-API/pkg/health"
	pkgkafka "github.com/Danreby/Back-end-Advanced-MVP-API/pkg/kafka"
	"github.com/Danreby/Back-end-Advanced-MVP-API/pkg/middleware"
	"github.com/Danreby/Back-end-Advanced-MVP-API/pkg/tracing"
)

const (
	serviceVersion         = "0.1.0"
	rememberPurgeInterval  = time.Hour
	slowQueryThreshold     = 200 * time.Millisecond
	mailDedupeTTL          = 24 * time.Hour
	mailDedupePrefix       = "gamelog:mail:processed:"
	shutdownHTTPBudget     = 5 * time.Second
	shutdownTracerBudget   = 3 * time.Second
	shutdownConsumerBudget = 5 * time.Second
)

// App wires together all dependencies and runs the accounts service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *goredis.Client
	producer       *pkgkafka.Producer
	mailConsumer   *pkgkafka.Consumer
	dispatcher     *mail.Dispatcher
	remember       *service.RememberTokenStore
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
	background     sync.WaitGroup
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: serviceVersion,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     cfg.TracingSampleRate,
		Enabled:        cfg.TracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	// Initialize PostgreSQL connection pool.
	pool, err := OpenDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.pool = pool
	database.RegisterPoolMetrics(pool, cfg.ServiceName)
	database.SetSlowQueryLogging(slowQueryThreshold, logger)

	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})

	// Redis backs single-use confirmation tokens and mail event dedupe.
	var consumed repository.ConsumedTokenStore
	if cfg.RedisEnabled {
		client, err := database.NewRedisClient(ctx, cfg.Redis())
		if err != nil {
			a.closeStores()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.redis = client
		consumed = redisrepo.NewConsumedTokenStore(client, redisrepo.DefaultConsumedTokenPrefix)
		logger.Info("connected to Redis", slog.String("addr", cfg.Redis().Addr()))

		checker := func(ctx context.Context) error { return client.Ping(ctx).Err() }
		if cfg.ConfirmTokenSingleUse {
			healthHandler.RegisterCritical("redis", checker)
		} else {
			healthHandler.RegisterNonCritical("redis", checker)
		}
	}

	// Kafka carries domain events and, optionally, mail requests.
	var publisher event.Publisher = event.NoopPublisher{}
	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = event.NewProducer(a.producer, logger)
		healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
			return a.producer.Ping(ctx)
		})
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	sender, err := NewMailSender(cfg, logger)
	if err != nil {
		a.closeStores()
		return nil, err
	}

	var mailer service.MailDispatcher
	if cfg.MailViaKafka {
		mailer = event.NewMailPublisher(a.producer, logger)

		var store pkgkafka.IdempotencyStore = pkgkafka.NewMemoryIdempotencyStore(mailDedupeTTL)
		if a.redis != nil {
			store = pkgkafka.NewRedisIdempotencyStore(a.redis, mailDedupePrefix, mailDedupeTTL)
		}
		a.mailConsumer = mail.NewConsumer(mail.ConsumerConfig{Brokers: cfg.KafkaBrokers, Store: store}, sender, logger)
	} else {
		a.dispatcher = mail.NewDispatcher(sender, cfg.MailWorkers, cfg.MailQueueSize, logger)
		mailer = a.dispatcher
	}
	logger.Info("mail delivery configured",
		slog.String("backend", sender.Name()),
		slog.Bool("via_kafka", cfg.MailViaKafka),
	)

	// Build the dependency graph.
	codec, err := auth.NewCodec(cfg.SecretKey, cfg.Algorithm, cfg.TokenLeeway())
	if err != nil {
		a.closeStores()
		return nil, fmt.Errorf("create token codec: %w", err)
	}
	hasher := auth.NewHasher(cfg.BcryptCost)

	userRepo := postgres.NewUserRepository(pool)
	rememberRepo := postgres.NewRememberTokenRepository(pool)

	a.remember = service.NewRememberTokenStore(rememberRepo, logger)
	confirmations := service.NewConfirmationService(userRepo, codec, consumed, mailer, publisher, service.ConfirmationConfig{
		TTL:        cfg.ConfirmTokenTTL(),
		ConfirmURL: cfg.EmailConfirmURL,
		SingleUse:  cfg.ConfirmTokenSingleUse,
	}, logger)
	accounts := service.NewAccountService(userRepo, hasher, a.remember, confirmations, publisher, logger)
	sessions := service.NewSessionService(userRepo, hasher, codec, a.remember, confirmations, service.SessionConfig{
		AccessTTL:             cfg.AccessTokenTTL(),
		RememberTTL:           cfg.RememberTokenTTL(),
		ResendOnInactiveLogin: cfg.ResendConfirmationOnInactiveLogin,
	}, logger)
	authenticator := service.NewAuthenticator(userRepo, codec)

	// HTTP router.
	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins
	corsCfg.AllowCredentials = true
	corsCfg.Environment = cfg.Environment

	router := handler.NewRouter(handler.Services{
		Accounts:      accounts,
		Sessions:      sessions,
		Confirmations: confirmations,
		ValidateToken: authenticator.ValidateToken,
	}, healthHandler, logger, handler.RouterConfig{
		ServiceName:       cfg.ServiceName,
		CORS:              corsCfg,
		Cookie:            handler.CookieConfig{MaxAge: cfg.RememberTokenTTL(), Secure: cfg.RememberCookieSecure},
		PprofAllowedCIDRs: cfg.PprofAllowedCIDRs,
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// OpenDatabase connects to PostgreSQL and applies the embedded migrations.
func OpenDatabase(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	pgCfg := cfg.Postgres()
	pool, err := database.NewPostgresPoolWithLogger(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", pgCfg.Host),
		slog.Int("port", pgCfg.Port),
		slog.String("database", pgCfg.DBName),
	)

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")
	return pool, nil
}

// NewMailSender builds the sender selected by MAIL_BACKEND.
func NewMailSender(cfg *config.Config, logger *slog.Logger) (mail.Sender, error) {
	switch cfg.MailBackend {
	case mail.BackendLog:
		return mail.NewLogSender(logger), nil
	case mail.BackendSMTP:
		return mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.MailServer,
			Port:     cfg.MailPort,
			Username: cfg.MailUsername,
			Password: cfg.MailPassword,
			From:     cfg.MailFrom,
			FromName: cfg.MailFromName,
			UseTLS:   cfg.MailUseTLS,
		}), nil
	case mail.BackendSendGrid:
		return mail.NewSendGridSender(mail.SendGridConfig{
			APIKey:   cfg.SendGridAPIKey,
			BaseURL:  cfg.SendGridBaseURL,
			From:     cfg.MailFrom,
			FromName: cfg.MailFromName,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unsupported mail backend %q", cfg.MailBackend)
	}
}

// Run starts the HTTP server and background workers and blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()

	a.background.Add(1)
	go func() {
		defer a.background.Done()
		a.remember.RunPurge(bgCtx, rememberPurgeInterval)
	}()

	if a.mailConsumer != nil {
		a.background.Add(1)
		go func() {
			defer a.background.Done()
			a.logger.Info("starting mail consumer", slog.String("topic", mail.EventTypeRequested))
			if err := a.mailConsumer.Start(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("mail consumer stopped", slog.String("error", err.Error()))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	stopBackground()
	return errors.Join(runErr, a.Shutdown())
}

// Shutdown gracefully stops all components in order:
// 1. HTTP server (drain in-flight requests)
// 2. Background workers and the mail consumer
// 3. Mail dispatcher (drain queued mail)
// 4. Tracer (flush pending spans)
// 5. Kafka producer, Redis and PostgreSQL
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), shutdownHTTPBudget)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.mailConsumer != nil {
		if err := a.mailConsumer.Close(); err != nil {
			a.logger.Error("mail consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if !waitTimeout(&a.background, shutdownConsumerBudget) {
		a.logger.Warn("background workers did not stop in time")
	}

	if a.dispatcher != nil {
		a.dispatcher.Close()
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), shutdownTracerBudget)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	errs = append(errs, a.closeStores())

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// closeStores releases the Kafka producer, Redis client and PostgreSQL pool.
func (a *App) closeStores() error {
	var errs []error
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errors.Join(errs...)
}

func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
