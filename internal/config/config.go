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
	DB struct {
		DSN string `yaml:"dsn"`
	} `yaml:"db"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
	} `yaml:"redis"`
	Chain struct {
		Network           string   `yaml:"network"`
		RPCEndpoints      []string `yaml:"rpc_endpoints"`
		FailoverThreshold int      `yaml:"failover_threshold"`
	} `yaml:"chain"`
	Orders struct {
		ExpiryMinutes int    `yaml:"expiry_minutes"`
		MinAmountINR  string `yaml:"min_amount_inr"`
	} `yaml:"orders"`
	Pricing struct {
		FixedINRPerNexa string `yaml:"fixed_inr_per_nexa"`
	} `yaml:"pricing"`
	Sweeper struct {
		CronSpec string `yaml:"cron_spec"`
	} `yaml:"sweeper"`
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
	applyDefaults(&cfg)

	if cfg.Server.Addr == "" {
		return nil, errors.New("server.addr is required")
	}
	if cfg.DB.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	if cfg.Chain.Network != "mainnet" && cfg.Chain.Network != "testnet" {
		return nil, errors.New("chain.network must be mainnet or testnet")
	}
	if len(cfg.Chain.RPCEndpoints) == 0 {
		return nil, errors.New("chain.rpc_endpoints is required")
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Orders.ExpiryMinutes <= 0 {
		cfg.Orders.ExpiryMinutes = 30
	}
	if cfg.Chain.FailoverThreshold <= 0 {
		cfg.Chain.FailoverThreshold = 3
	}
	if cfg.Sweeper.CronSpec == "" {
		cfg.Sweeper.CronSpec = "* * * * *"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DB.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("CHAIN_NETWORK"); v != "" {
		cfg.Chain.Network = v
	}
	if v := os.Getenv("RPC_ENDPOINTS"); v != "" {
		cfg.Chain.RPCEndpoints = splitCommaList(v)
	}
	if v := os.Getenv("RPC_FAILOVER_THRESHOLD"); v != "" {
		cfg.Chain.FailoverThreshold = atoiOr(cfg.Chain.FailoverThreshold, v)
	}
	if v := os.Getenv("ORDER_EXPIRY_MINUTES"); v != "" {
		cfg.Orders.ExpiryMinutes = atoiOr(cfg.Orders.ExpiryMinutes, v)
	}
	if v := os.Getenv("MIN_AMOUNT_INR"); v != "" {
		cfg.Orders.MinAmountINR = v
	}
	if v := os.Getenv("FIXED_INR_PER_NEXA"); v != "" {
		cfg.Pricing.FixedINRPerNexa = v
	}
	if v := os.Getenv("SWEEPER_CRON_SPEC"); v != "" {
		cfg.Sweeper.CronSpec = v
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
