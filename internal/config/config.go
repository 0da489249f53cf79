package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Instance struct {
		ID string `yaml:"id"`
	} `yaml:"instance"`
	DB struct {
		DSN        string `yaml:"dsn"`
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"db"`
	Redis struct {
		Addr string `yaml:"addr"`
		TTL  int    `yaml:"ttl_minutes"`
	} `yaml:"redis"`
	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`
	Fragment struct {
		BaseURL string `yaml:"base_url"`
		Cookies string `yaml:"cookies"`
		Hash    string `yaml:"hash"`
	} `yaml:"fragment"`
	TonAPI struct {
		BaseURL    string `yaml:"base_url"`
		WSEndpoint string `yaml:"ws_endpoint"`
		APIKey     string `yaml:"api_key"`
	} `yaml:"tonapi"`
	Wallet struct {
		Address   string `yaml:"address"`
		SignerURL string `yaml:"signer_url"`
	} `yaml:"wallet"`
	Worker struct {
		IntervalSeconds int    `yaml:"interval_seconds"`
		BatchLimit      int    `yaml:"batch_limit"`
		ShowAd          bool   `yaml:"show_ad"`
		PayloadMessage  string `yaml:"payload_message"`
	} `yaml:"worker"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Instance.ID == "" {
		return nil, errors.New("instance.id is required")
	}
	if cfg.DB.DSN == "" && cfg.DB.SQLitePath == "" {
		return nil, errors.New("either db.dsn or db.sqlite_path is required")
	}
	if cfg.Worker.IntervalSeconds <= 0 {
		cfg.Worker.IntervalSeconds = 2
	}
	if cfg.Worker.BatchLimit <= 0 {
		cfg.Worker.BatchLimit = 25
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("INSTANCE_ID"); v != "" {
		cfg.Instance.ID = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DB.DSN = v
	}
	if v := os.Getenv("DB_SQLITE_PATH"); v != "" {
		cfg.DB.SQLitePath = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitCommaList(v)
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		cfg.Kafka.Topic = v
	}
	if v := os.Getenv("FRAGMENT_BASE_URL"); v != "" {
		cfg.Fragment.BaseURL = v
	}
	if v := os.Getenv("FRAGMENT_COOKIES"); v != "" {
		cfg.Fragment.Cookies = v
	}
	if v := os.Getenv("FRAGMENT_HASH"); v != "" {
		cfg.Fragment.Hash = v
	}
	if v := os.Getenv("TONAPI_BASE_URL"); v != "" {
		cfg.TonAPI.BaseURL = v
	}
	if v := os.Getenv("TONAPI_WS_ENDPOINT"); v != "" {
		cfg.TonAPI.WSEndpoint = v
	}
	if v := os.Getenv("TONAPI_KEY"); v != "" {
		cfg.TonAPI.APIKey = v
	}
	if v := os.Getenv("WALLET_ADDRESS"); v != "" {
		cfg.Wallet.Address = v
	}
	if v := os.Getenv("WALLET_SIGNER_URL"); v != "" {
		cfg.Wallet.SignerURL = v
	}
	if v := os.Getenv("WORKER_INTERVAL_SECONDS"); v != "" {
		cfg.Worker.IntervalSeconds = atoiOr(cfg.Worker.IntervalSeconds, v)
	}
	if v := os.Getenv("WORKER_BATCH_LIMIT"); v != "" {
		cfg.Worker.BatchLimit = atoiOr(cfg.Worker.BatchLimit, v)
	}
}

func splitCommaList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func atoiOr(fallback int, v string) int {
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}
