package main

import (
	"context"
	"errors"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gin-gonic/gin"
	"github.com/layer-3/doctorauth/adapters/events"
	"github.com/layer-3/doctorauth/adapters/pin"
	"github.com/layer-3/doctorauth/adapters/ratelimit"
	"github.com/layer-3/doctorauth/adapters/store"
	"github.com/layer-3/doctorauth/adapters/tokenizer"
	"github.com/layer-3/doctorauth/internal/config"
	"github.com/layer-3/doctorauth/internal/observability"
	"github.com/layer-3/doctorauth/ports"
	"github.com/layer-3/doctorauth/service"
	"github.com/layer-3/doctorauth/transport/http"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// backends are the shared-state adapters selected by STORE_BACKEND
type backends struct {
	revocations ports.RevocationStore
	attempts    ports.AttemptStore
	limiter     ports.RateLimiter
	health      ports.Pinger
	publisher   message.Publisher
	close       func() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.Production())

	if err := observability.InitSentry(cfg.SentryDSN, cfg.Env); err != nil {
		logger.Error().Err(err).Msg("Failed to init sentry")
	}
	defer observability.FlushSentry()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := newBackends(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect backends")
	}
	defer func() {
		if err := b.close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close backends")
		}
	}()

	pinHash := cfg.DoctorPinHash
	if pinHash == "" {
		logger.Warn().Msg("DOCTOR_PIN_HASH not set, hashing DOCTOR_PIN at startup")
		pinHash, err = pin.HashPin(cfg.DoctorPin, pin.DefaultCost)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to hash pin")
		}
	}
	matcher, err := pin.NewBcryptMatcher(map[string]string{cfg.DoctorID: pinHash})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load pin hash")
	}

	tok, err := tokenizer.NewJWTTokenizer([]byte(cfg.JWTSecret), cfg.Issuer, cfg.Audience)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create tokenizer")
	}

	issuer, err := service.NewTokenIssuer(tok, b.revocations, cfg.AccessTTL, cfg.RefreshTTL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create token issuer")
	}

	tracker := service.NewAttemptTracker(b.attempts, cfg.MaxAttempts, cfg.LockoutDuration)
	verifier := service.NewPinVerifier(tracker, matcher, b.limiter, service.PinPolicy{
		CountMalformed: cfg.CountMalformed,
		Scope:          service.LockoutScope(cfg.LockoutScope),
	})

	var eventPub ports.EventPublisher
	if b.publisher != nil {
		eventPub = events.NewWatermillPublisher(b.publisher)
	}

	authService := service.NewAuthService(tok, b.revocations, verifier, issuer, eventPub, logger)

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := http.SetupRouter(authService, http.RouterConfig{
		Identity: cfg.DoctorID,
		Cookies:  http.CookieConfig{Secure: cfg.CookieSecure, Domain: cfg.CookieDomain},
		Health:   b.health,
	}, logger)

	server := &nethttp.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Str("store", cfg.StoreBackend).Msg("Starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
	}
}

func newBackends(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*backends, error) {
	wmLogger := observability.NewWatermillLogger(logger)

	if cfg.StoreBackend == config.BackendMemory {
		logger.Warn().Msg("Using in-memory stores, lockouts and sessions are local to this instance")

		revocations := store.NewMemoryStore()
		b := &backends{
			revocations: revocations,
			attempts:    store.NewMemoryAttemptStore(),
			limiter:     ratelimit.NewMemoryLimiter(cfg.RateLimitMax, cfg.RateLimitWindow),
			health:      revocations,
			close:       func() error { return nil },
		}
		if cfg.EventsOn {
			pubSub := gochannel.NewGoChannel(gochannel.Config{}, wmLogger)
			b.publisher = pubSub
			b.close = pubSub.Close
		}
		return b, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	redisClient := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		_ = redisClient.Close()
		return nil, err
	}

	revocations := store.NewRedisStore(redisClient)
	b := &backends{
		revocations: revocations,
		attempts:    store.NewRedisAttemptStore(redisClient),
		limiter:     ratelimit.NewRedisLimiter(redisClient, cfg.RateLimitMax, cfg.RateLimitWindow),
		health:      revocations,
		close:       redisClient.Close,
	}

	if cfg.EventsOn {
		publisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{
				Client: redisClient,
			},
			wmLogger,
		)
		if err != nil {
			_ = redisClient.Close()
			return nil, err
		}
		b.publisher = publisher
		b.close = func() error {
			return errors.Join(publisher.Close(), redisClient.Close())
		}
	}

	return b, nil
}
