package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"StarsAutoFill/internal/config"
	"StarsAutoFill/internal/db"
	"StarsAutoFill/internal/fragment"
	internalhttp "StarsAutoFill/internal/http"
	"StarsAutoFill/internal/metrics"
	"StarsAutoFill/internal/resolver"
	"StarsAutoFill/internal/services"
	"StarsAutoFill/internal/store"

	"github.com/go-redis/redis/v8"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx := context.Background()
	st, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("store open failed: %v", err)
	}
	defer cleanup()

	frag := fragment.NewClient(cfg.Fragment.BaseURL, cfg.Fragment.Cookies, cfg.Fragment.Hash)
	res := resolver.New(frag)
	res.Metrics = metrics.New()
	if cfg.Redis.Addr != "" {
		ttl := time.Duration(cfg.Redis.TTL) * time.Minute
		res.Cache = resolver.NewCache(redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr}), ttl)
	}

	orderSvc := &services.OrderService{
		Store:    st,
		Resolver: res,
		Instance: cfg.Instance.ID,
	}

	h := internalhttp.NewHandler(orderSvc)
	srv := internalhttp.NewServer(h)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Router,
	}

	go func() {
		log.Printf("api listening on %s", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	if cfg.DB.DSN != "" {
		pool, err := db.Connect(ctx, cfg.DB.DSN)
		if err != nil {
			return nil, nil, err
		}
		return store.NewPostgres(pool), pool.Close, nil
	}
	st, err := store.OpenSQLite(cfg.DB.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	return st, func() { _ = st.DB.Close() }, nil
}
