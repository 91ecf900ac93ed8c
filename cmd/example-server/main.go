package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/manenim/halt/internal/config"
	ginmiddleware "github.com/manenim/halt/pkg/adapters/gin"
	"github.com/manenim/halt/pkg/adapters/nethttp"
	"github.com/manenim/halt/pkg/keys"
	"github.com/manenim/halt/pkg/limiter"
	"github.com/manenim/halt/pkg/presets"
	"github.com/manenim/halt/pkg/store"
)

// userHeader stands in for real authentication in the demo.
const userHeader = "X-User-ID"

// demoUsers maps user ids to plans when no plan file is given.
var demoUsers = map[string]string{
	"alice": presets.Pro,
	"carol": presets.Enterprise,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stderr); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, args []string, stderr io.Writer) error {
	cfg, err := config.Load(args, stderr)
	if err != nil {
		return err
	}

	logger := limiter.NewStdLogger(stderr)

	s, err := newStore(cfg)
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	if c, ok := s.(io.Closer); ok {
		defer func() { _ = c.Close() }()
	}

	l, err := limiter.New(s, policySource(cfg),
		limiter.WithTrustedProxies(cfg.TrustedProxies...),
		limiter.WithExemptPrivateIPs(cfg.ExemptPrivateIPs),
		limiter.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("create limiter: %w", err)
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           newHandler(cfg, l, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("listening on %s (router: %s, store: %s)", cfg.ListenAddr, cfg.Router, cfg.Store)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newStore(cfg config.Config) (store.Store, error) {
	switch cfg.Store {
	case "redis":
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: cfg.RedisAddrs})
		return store.NewRedisStore(client, store.WithTimeout(cfg.RedisTimeout))
	case "sharded":
		shards := make(map[string]store.Store, len(cfg.RedisAddrs))
		for _, addr := range cfg.RedisAddrs {
			rs, err := store.NewRedisStore(redis.NewClient(&redis.Options{Addr: addr}), store.WithTimeout(cfg.RedisTimeout))
			if err != nil {
				return nil, fmt.Errorf("shard %s: %w", addr, err)
			}
			shards[addr] = rs
		}
		return store.NewSharded(shards)
	default:
		mc := store.DefaultMemoryStoreConfig()
		mc.MaxEntries = cfg.MaxEntries
		return store.NewMemoryStoreWithConfig(mc), nil
	}
}

func policySource(cfg config.Config) limiter.PolicySource {
	if plans := cfg.Plans; plans != nil {
		return limiter.Resolved(plans.Kind, func(r keys.RequestView) limiter.Policy {
			user, _ := r.UserID()
			return plans.PlanFor(user)
		})
	}
	return presets.PlanResolver(func(r keys.RequestView) string {
		user, _ := r.UserID()
		return demoUsers[user]
	})
}

func newHandler(cfg config.Config, l limiter.Checker, logger limiter.Logger) http.Handler {
	if cfg.Router == "gin" {
		return newGinRouter(cfg, l, logger)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/hello", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello\n"))
	})

	limited := nethttp.Middleware(l,
		nethttp.WithFailOpen(cfg.FailOpen),
		nethttp.WithLogger(logger),
	)(mux)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user := strings.TrimSpace(r.Header.Get(userHeader)); user != "" {
			r = r.WithContext(nethttp.WithUser(r.Context(), user))
		}
		limited.ServeHTTP(w, r)
	})
}

func newGinRouter(cfg config.Config, l limiter.Checker, logger limiter.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(func(c *gin.Context) {
		if user := strings.TrimSpace(c.GetHeader(userHeader)); user != "" {
			c.Set(ginmiddleware.UserContextKey, user)
		}
		c.Next()
	})
	router.Use(ginmiddleware.Middleware(l, ginmiddleware.Options{
		FailOpen: cfg.FailOpen,
		Logger:   logger,
	}))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/hello", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "hello"})
	})
	return router
}
