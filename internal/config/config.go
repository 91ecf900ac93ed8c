// Package config loads the example server configuration from flags,
// environment variables and an optional YAML plan file.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the example server configuration.
type Config struct {
	ListenAddr       string        `validate:"required,hostname_port"`
	Router           string        `validate:"oneof=http gin"`
	Store            string        `validate:"oneof=memory redis sharded"`
	RedisAddrs       []string      `validate:"required_unless=Store memory,dive,hostname_port"`
	RedisTimeout     time.Duration `validate:"gte=0"`
	MaxEntries       int64         `validate:"gte=0"`
	FailOpen         bool
	TrustedProxies   []string `validate:"dive,cidr|ip"`
	ExemptPrivateIPs bool
	PlansFile        string
	Plans            *Plans `validate:"-"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		d, err := time.ParseDuration(fl.Field().String())
		return err == nil && d > 0
	})
	return v
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Load parses args with environment variables as defaults, reads the plan
// file when one is named, and validates the result.
func Load(args []string, output io.Writer) (Config, error) {
	if output == nil {
		output = io.Discard
	}
	fs := flag.NewFlagSet("example-server", flag.ContinueOnError)
	fs.SetOutput(output)

	var cfg Config
	fs.StringVar(&cfg.ListenAddr, "listen", String("LISTEN_ADDR", ":8080"), "listen address")
	fs.StringVar(&cfg.Router, "router", String("ROUTER", "http"), "http or gin")
	fs.StringVar(&cfg.Store, "store", String("STORE", "memory"), "memory, redis or sharded")
	redisAddrs := fs.String("redis-addrs", String("REDIS_ADDRS", "localhost:6379"), "comma separated redis addresses")
	fs.DurationVar(&cfg.RedisTimeout, "redis-timeout", Duration("REDIS_TIMEOUT", 100*time.Millisecond), "per call redis timeout")
	fs.Int64Var(&cfg.MaxEntries, "max-entries", Int64("MAX_ENTRIES", 100_000), "memory store entry cap, 0 for none")
	fs.BoolVar(&cfg.FailOpen, "fail-open", Bool("FAIL_OPEN", false), "allow traffic when the store fails")
	proxies := fs.String("trusted-proxies", String("TRUSTED_PROXIES", ""), "comma separated trusted proxy IPs or CIDRs")
	// Off by default so requests from localhost are limited in the demo.
	fs.BoolVar(&cfg.ExemptPrivateIPs, "exempt-private", Bool("EXEMPT_PRIVATE_IPS", false), "skip limiting for private clients")
	fs.StringVar(&cfg.PlansFile, "plans", String("PLANS_FILE", ""), "YAML plan file")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.RedisAddrs = List(*redisAddrs)
	cfg.TrustedProxies = List(*proxies)

	if cfg.PlansFile != "" {
		plans, err := LoadPlans(cfg.PlansFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Plans = plans
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
