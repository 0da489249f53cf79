package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"StarsAutoFill/internal/config"
	"StarsAutoFill/internal/db"
	"StarsAutoFill/internal/fragment"
	"StarsAutoFill/internal/metrics"
	"StarsAutoFill/internal/notify"
	"StarsAutoFill/internal/provider"
	"StarsAutoFill/internal/store"
	"StarsAutoFill/internal/ton"
	"StarsAutoFill/internal/worker"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("store open failed: %v", err)
	}
	defer cleanup()

	holder := provider.NewHolder(buildCapabilities(ctx, cfg))

	var sink notify.Sink
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Topic != "" {
		k := notify.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer k.Close()
		sink = k
	}

	w := worker.New(st, holder, sink, cfg.Instance.ID)
	w.Interval = time.Duration(cfg.Worker.IntervalSeconds) * time.Second
	w.BatchLimit = cfg.Worker.BatchLimit
	w.Payload = notify.NewPayloadFunc(cfg.Worker.PayloadMessage, cfg.Worker.ShowAd)
	w.Metrics = metrics.New()

	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		ctxStop, cancelStop := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancelStop()
		if err := w.Stop(ctxStop); err != nil {
			log.Printf("worker stop: %v", err)
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("worker exited: %v", err)
		}
	}
}

// buildCapabilities wires whatever external services the config provides.
// Missing pieces stay nil; the scheduler reports them per batch instead of
// refusing to start.
func buildCapabilities(ctx context.Context, cfg *config.Config) *provider.Capabilities {
	caps := &provider.Capabilities{}

	if cfg.Fragment.Cookies != "" && cfg.Fragment.Hash != "" {
		caps.Fragment = fragment.NewClient(cfg.Fragment.BaseURL, cfg.Fragment.Cookies, cfg.Fragment.Hash)
	} else {
		log.Printf("fragment api not configured")
	}

	if cfg.Wallet.Address != "" && cfg.Wallet.SignerURL != "" {
		api := ton.NewClient(cfg.TonAPI.BaseURL, cfg.TonAPI.APIKey)
		signer := ton.NewRemoteSigner(cfg.Wallet.SignerURL, cfg.Wallet.Address)

		var stream *ton.AccountStream
		if cfg.TonAPI.WSEndpoint != "" {
			stream = ton.NewAccountStream(cfg.TonAPI.WSEndpoint, cfg.Wallet.Address)
			go stream.Run(ctx)
		}
		caps.Wallet = ton.NewWallet(api, signer, stream)
	} else {
		log.Printf("wallet not configured")
	}

	return caps
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
