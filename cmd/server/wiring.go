package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mppchs/internal/beneficiary/snapshot"
	bstore "mppchs/internal/beneficiary/store"
	"mppchs/internal/changerequest/apply"
	"mppchs/internal/changerequest/cache"
	"mppchs/internal/changerequest/conflict"
	"mppchs/internal/changerequest/events"
	"mppchs/internal/changerequest/handler"
	"mppchs/internal/changerequest/ledger"
	"mppchs/internal/changerequest/service"
	crstore "mppchs/internal/changerequest/store"
	jwttoken "mppchs/internal/jwt_token"
	"mppchs/internal/platform/config"
	"mppchs/internal/platform/kafka"
	"mppchs/internal/platform/metrics"
	"mppchs/internal/platform/postgres"
	"mppchs/internal/platform/redis"
	"mppchs/pkg/platform/audit"
	auditmemory "mppchs/pkg/platform/audit/store/memory"
	auditpostgres "mppchs/pkg/platform/audit/store/postgres"
	"mppchs/pkg/platform/crypto"
	"mppchs/pkg/platform/httputil"
	authmw "mppchs/pkg/platform/middleware/auth"
	"mppchs/pkg/platform/middleware/request"
	"mppchs/pkg/platform/middleware/requesttime"
)

// liveStore is what the beneficiary backends provide to the service, the
// snapshot provider and the conflict detector.
type liveStore interface {
	service.LiveStore
	snapshot.Reader
	conflict.LiveIndex
}

// requestStore is what the change request backends provide.
type requestStore interface {
	service.RequestStore
	service.ItemStore
	service.LogStore
}

// app is the assembled process: its router plus the resources that need a
// background loop or an orderly close.
type app struct {
	router     http.Handler
	background []func(ctx context.Context) error
	closers    []func(ctx context.Context)
	checks     map[string]func(ctx context.Context) error
}

func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i](ctx)
	}
}

// buildApp wires every backend. Each external dependency is optional: an
// empty DATABASE_URL, REDIS_URL or KAFKA_BROKERS selects the in-process
// implementation.
func buildApp(ctx context.Context, cfg *config.Config, log *slog.Logger, reg *prometheus.Registry) (_ *app, err error) {
	a := &app{checks: map[string]func(context.Context) error{}}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	m := metrics.New(reg)

	cipher, err := newCipher(cfg, log)
	if err != nil {
		return nil, err
	}

	var (
		live     liveStore
		requests requestStore
		audits   audit.Store
		tx       service.StoreTx
	)
	if cfg.Database.URL != "" {
		db, err := postgres.Open(ctx, cfg.Database.URL, postgres.PoolConfig{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) { _ = db.Close() })
		a.checks["postgres"] = db.PingContext

		live, requests, audits = bstore.NewPostgres(db), crstore.NewPostgres(db), auditpostgres.New(db)
		tx = newPostgresTx(db, storesOf(live, requests, audits), cfg.Database.TxTimeout)
		log.InfoContext(ctx, "using postgres stores")
	} else {
		memLive, memRequests, memAudits := bstore.NewInMemory(), crstore.NewInMemory(), auditmemory.NewInMemoryStore()
		live, requests, audits = memLive, memRequests, memAudits
		tx = service.NewInMemoryTx(storesOf(live, requests, audits), memRequests, memAudits, memLive).
			WithTimeout(cfg.Database.TxTimeout)
		log.WarnContext(ctx, "DATABASE_URL not set, using in-memory stores")
	}

	var listCache cache.Cache
	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if redisClient != nil {
		a.closers = append(a.closers, func(context.Context) { _ = redisClient.Close() })
		a.checks["redis"] = redisClient.Health
		listCache = cache.NewRedis(redisClient.Client)
		log.InfoContext(ctx, "using redis list cache")
	} else {
		listCache = cache.NewMemory()
	}

	publisher, err := newPublisher(ctx, a, cfg.Kafka, log)
	if err != nil {
		return nil, err
	}

	policy, err := ledger.ParseRebuildPolicy(cfg.ChangeRequest.LedgerRebuildPolicy)
	if err != nil {
		return nil, err
	}

	svc := service.New(
		storesOf(live, requests, audits),
		tx,
		snapshot.NewProvider(live, cipher),
		conflict.New(live, requests, cipher, conflict.WithMetrics(m), conflict.WithLogger(log)),
		apply.New(cipher),
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithCache(listCache),
		service.WithPublisher(publisher),
		service.WithRebuildPolicy(policy),
		service.WithListTTL(cfg.ChangeRequest.ListCacheTTL),
	)

	jwtService := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience)
	a.router = newRouter(log, reg, jwttoken.NewJWTServiceAdapter(jwtService), handler.New(svc, log), a.checks)
	return a, nil
}

func storesOf(live service.LiveStore, requests requestStore, audits audit.Store) service.Stores {
	return service.Stores{
		Requests: requests,
		Items:    requests,
		Logs:     requests,
		Audit:    audits,
		Live:     live,
	}
}

// newCipher decodes the field encryption key. Without a database a missing
// key is replaced by a random one since nothing outlives the process.
func newCipher(cfg *config.Config, log *slog.Logger) (*crypto.Cipher, error) {
	if cfg.Crypto.FieldEncryptionKey != "" {
		return crypto.NewFromBase64(cfg.Crypto.FieldEncryptionKey)
	}
	if cfg.Database.URL != "" {
		return nil, errors.New("FIELD_ENCRYPTION_KEY is required with DATABASE_URL")
	}
	key := make([]byte, crypto.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate field encryption key: %w", err)
	}
	log.Warn("FIELD_ENCRYPTION_KEY not set, using an ephemeral key")
	return crypto.New(key)
}

// newPublisher returns the Kafka publisher behind a dispatcher, or the log
// publisher when no brokers are configured.
func newPublisher(ctx context.Context, a *app, cfg config.KafkaConfig, log *slog.Logger) (events.Publisher, error) {
	client, err := kafka.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return events.NewLogPublisher(log), nil
	}
	a.closers = append(a.closers, client.Close)
	a.checks["kafka"] = client.Health
	if err := client.EnsureTopic(ctx, cfg.Partitions, 1); err != nil {
		return nil, err
	}

	dispatcher := events.NewDispatcher(events.NewKafkaPublisher(client, client.Topic(), log), 0, log)
	a.background = append(a.background, dispatcher.Run)
	log.InfoContext(ctx, "publishing change request events to kafka", "topic", client.Topic())
	return dispatcher, nil
}

func newRouter(log *slog.Logger, reg *prometheus.Registry, validator authmw.JWTValidator, h *handler.Handler, checks map[string]func(context.Context) error) http.Handler {
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(log))
	r.Use(request.Logger(log))
	r.Use(requesttime.Middleware)

	r.Get("/healthz", healthHandler(checks))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(validator, log))
		h.Register(r)
	})
	return r
}

func healthHandler(checks map[string]func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{}
		healthy := true
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				status[name] = "unavailable"
				healthy = false
				continue
			}
			status[name] = "ok"
		}
		if !healthy {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "checks": status})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok", "checks": status})
	}
}
