package bootstrap

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrEthical07/docportal"
	"github.com/MrEthical07/docportal/catalog"
	"github.com/MrEthical07/docportal/credstore"
	"github.com/MrEthical07/docportal/httpapi"
	"github.com/MrEthical07/docportal/localbackend"
	otelexport "github.com/MrEthical07/docportal/metrics/export/otel"
	"github.com/MrEthical07/docportal/metrics/export/prometheus"
	"github.com/MrEthical07/docportal/supabase"
)

// credentialNamespace prefixes credential keys kept in Redis.
const credentialNamespace = "docportal:credentials"

// Options carries process-level collaborators that do not belong in Config.
type Options struct {
	Logger *slog.Logger
	// Meter, when set, receives the portal metrics as OpenTelemetry
	// instruments.
	Meter metric.Meter
}

type autoRefresher interface {
	AutoRefresh(ctx context.Context) error
}

// Runtime owns every long-lived component of the portal process.
type Runtime struct {
	cfg    Config
	logger *slog.Logger

	redis     redis.UniversalClient
	backend   docportal.Backend
	refresher autoRefresher
	storage   credstore.KV
	catalog   catalog.Repository

	store      *docportal.Store
	gate       *docportal.Gate
	handler    http.Handler
	listener   net.Listener
	httpServer *http.Server

	cleanup []func()
}

// NewRuntime wires the portal from cfg and binds the HTTP listener. The
// Session is initialized by Run.
func NewRuntime(ctx context.Context, cfg Config, opts Options) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &Runtime{cfg: cfg, logger: logger}
	if err := r.build(ctx, opts); err != nil {
		r.close()
		return nil, err
	}
	return r, nil
}

func (r *Runtime) build(ctx context.Context, opts Options) error {
	var err error
	switch r.cfg.Backend {
	case BackendLocal:
		err = r.buildLocal(ctx)
	case BackendSupabase:
		err = r.buildSupabase(ctx)
	default:
		err = fmt.Errorf("unknown backend %q", r.cfg.Backend)
	}
	if err != nil {
		return err
	}

	storeCfg := docportal.DefaultConfig()
	storeCfg.Session = r.cfg.sessionConfig()
	storeCfg.Gate.ResolveBudget = r.cfg.ResolveBudget

	builder := docportal.New().
		WithConfig(storeCfg).
		WithBackend(r.backend).
		WithStorage(r.storage).
		WithLogger(r.logger)
	if r.cfg.AuditLog {
		builder = builder.WithAuditSink(docportal.NewSlogSink(r.logger))
	}
	store, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build session store: %w", err)
	}
	r.store = store
	r.cleanup = append(r.cleanup, store.Close)
	r.gate = docportal.NewGate(store)

	if opts.Meter != nil {
		exp, err := otelexport.NewOTelExporter(opts.Meter, store)
		if err != nil {
			return fmt.Errorf("register otel metrics: %w", err)
		}
		r.cleanup = append(r.cleanup, func() { _ = exp.Close() })
	}

	handler, err := httpapi.NewHandler(httpapi.Options{
		Store:          store,
		Gate:           r.gate,
		Catalog:        r.catalog,
		Metrics:        prometheus.NewPrometheusExporter(store).Handler(),
		Logger:         r.logger,
		AllowedOrigins: r.cfg.AllowedOrigins,
	})
	if err != nil {
		return err
	}
	r.handler = handler.Router()

	lis, err := net.Listen("tcp", r.cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen http: %w", err)
	}
	r.listener = lis
	r.cleanup = append(r.cleanup, func() { _ = lis.Close() })
	r.httpServer = &http.Server{
		Handler:           r.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return nil
}

func (r *Runtime) buildLocal(ctx context.Context) error {
	rdb, err := r.connectRedis(ctx)
	if err != nil {
		return err
	}
	kv := credstore.NewRedis(rdb, credentialNamespace)

	lcfg := localbackend.DefaultConfig()
	lcfg.Logger = r.logger
	secret := r.cfg.JWTSecret
	if secret == "" {
		secret, err = ephemeralSecret()
		if err != nil {
			return err
		}
		r.logger.Warn("no jwt secret configured, using an ephemeral one; sessions end with the process")
	}
	lcfg.JWTSecret = []byte(secret)

	be, err := localbackend.New(rdb, kv, lcfg)
	if err != nil {
		return err
	}
	if r.cfg.AdminEmail != "" {
		id, err := be.EnsureUser(ctx, r.cfg.AdminEmail, r.cfg.AdminPassword, docportal.RoleAdmin)
		if err != nil {
			return fmt.Errorf("seed admin account: %w", err)
		}
		r.logger.Info("admin account ready", "user_id", id.ID, "email", id.Email)
	}

	r.backend = be
	r.refresher = be
	r.storage = kv
	r.catalog = catalog.NewRedisRepository(rdb, r.cfg.CatalogPrefix)
	return nil
}

func (r *Runtime) buildSupabase(ctx context.Context) error {
	switch r.cfg.Credentials {
	case CredentialsFile:
		r.storage = credstore.NewFile(r.cfg.CredentialsFile)
	case CredentialsMemory:
		r.storage = credstore.NewMemory()
	case CredentialsRedis:
		rdb, err := r.connectRedis(ctx)
		if err != nil {
			return err
		}
		r.storage = credstore.NewRedis(rdb, credentialNamespace)
	default:
		return fmt.Errorf("unknown credential store %q", r.cfg.Credentials)
	}

	client, err := supabase.New(supabase.Config{
		URL:     r.cfg.SupabaseURL,
		AnonKey: r.cfg.SupabaseAnonKey,
		Logger:  r.logger,
	}, r.storage)
	if err != nil {
		return err
	}
	r.backend = client
	r.refresher = client
	r.catalog = client.Catalog()
	return nil
}

// connectRedis accepts a redis:// URL or host:port. Without one it starts an
// embedded in-memory server.
func (r *Runtime) connectRedis(ctx context.Context) (redis.UniversalClient, error) {
	if r.redis != nil {
		return r.redis, nil
	}

	var client *redis.Client
	switch url := strings.TrimSpace(r.cfg.RedisURL); {
	case url == "":
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start embedded redis: %w", err)
		}
		r.cleanup = append(r.cleanup, mr.Close)
		r.logger.Warn("no redis url configured, using embedded in-memory redis", "addr", mr.Addr())
		client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	case strings.HasPrefix(url, "redis://"), strings.HasPrefix(url, "rediss://"):
		opt, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	default:
		client = redis.NewClient(&redis.Options{Addr: url})
	}
	r.cleanup = append(r.cleanup, func() { _ = client.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	r.redis = client
	return client, nil
}

func ephemeralSecret() (string, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate jwt secret: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}

// Addr is the bound HTTP address.
func (r *Runtime) Addr() string {
	if r.listener == nil {
		return ""
	}
	return r.listener.Addr().String()
}

func (r *Runtime) Store() *docportal.Store { return r.store }

func (r *Runtime) Handler() http.Handler { return r.handler }

// Run serves HTTP, initializes the Session and runs the background loops
// until ctx is done or the server fails. It always releases every resource
// before returning.
func (r *Runtime) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	loop := func(name string, fn func(context.Context) error) {
		if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("background loop stopped", "loop", name, "error", err)
		}
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		r.gate.Watchdog(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := r.store.Initialize(ctx); err != nil {
			r.logger.Error("session initialization failed", "error", err)
		}
		r.logger.Info("session resolved", "authenticated", r.store.Snapshot().IsAuthenticated())

		var inner sync.WaitGroup
		inner.Add(2)
		go func() {
			defer inner.Done()
			loop("keep_alive", r.store.Run)
		}()
		go func() {
			defer inner.Done()
			loop("auto_refresh", r.refresher.AutoRefresh)
		}()
		inner.Wait()
	}()

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("http server started", "addr", r.Addr(), "backend", r.cfg.Backend)
		if err := r.httpServer.Serve(r.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		r.logger.Error("server failure", "error", runErr)
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), r.cfg.ShutdownTimeout)
	defer stop()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("http shutdown incomplete", "error", err)
	}
	cancel()
	wg.Wait()
	r.close()
	return runErr
}

// close releases resources in reverse acquisition order.
func (r *Runtime) close() {
	for i := len(r.cleanup) - 1; i >= 0; i-- {
		r.cleanup[i]()
	}
	r.cleanup = nil
}
