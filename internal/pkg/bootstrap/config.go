// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"bazaar/internal/pkg/logger"
)

// Duration is a time.Duration that unmarshals from YAML strings like "150ms".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	td, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(td)
	return nil
}

// Std converts back to a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds everything a service needs at startup. Values come from the
// YAML config file, with environment variables overriding addresses and
// secrets for containerized deployments.
type Config struct {
	App struct {
		Env      string `yaml:"env"`
		LogLevel string `yaml:"logLevel"`
	} `yaml:"app"`

	Infra struct {
		Mysql struct {
			DSN string `yaml:"dsn"`
		} `yaml:"mysql"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
		Kafka struct {
			Brokers       []string `yaml:"brokers"`
			CheckoutTopic string   `yaml:"checkoutTopic"`
		} `yaml:"kafka"`
		Jaeger struct {
			Endpoint string `yaml:"endpoint"`
		} `yaml:"jaeger"`
		Nacos struct {
			ServerAddrs string `yaml:"serverAddrs"`
			Namespace   string `yaml:"namespace"`
			Group       string `yaml:"group"`
		} `yaml:"nacos"`
	} `yaml:"infra"`

	Security struct {
		InternalSecret string `yaml:"internalSecret"`
		// DevBypass accepts the x-internal-bypass header instead of a
		// signature. Must stay false outside local development.
		DevBypass bool `yaml:"devBypass"`
	} `yaml:"security"`

	Inventory struct {
		Lock struct {
			TTL        Duration `yaml:"ttl"`
			Retries    int      `yaml:"retries"`
			RetryDelay Duration `yaml:"retryDelay"`
		} `yaml:"lock"`
		Sweep struct {
			Enabled   bool     `yaml:"enabled"`
			Interval  Duration `yaml:"interval"`
			BatchSize int      `yaml:"batchSize"`
		} `yaml:"sweep"`
	} `yaml:"inventory"`

	Checkout struct {
		StepTimeout    Duration `yaml:"stepTimeout"`
		ReservationTTL Duration `yaml:"reservationTtl"`
		Payment        struct {
			BaseURL      string `yaml:"baseUrl"`
			ClientID     string `yaml:"clientId"`
			ClientSecret string `yaml:"clientSecret"`
		} `yaml:"payment"`
	} `yaml:"checkout"`
}

var (
	configMu      sync.RWMutex
	currentConfig Config
)

// Init loads configuration. Call once from main before StartService.
func Init() {
	cfg := defaultConfig()

	path := getEnv("CONFIG_FILE", "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Logger.Warn().Str("path", path).Err(err).Msg("config file not found, using defaults and env")
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		logger.Logger.Fatal().Str("path", path).Err(err).Msg("failed to parse config file")
	}

	applyEnvOverrides(&cfg)

	configMu.Lock()
	currentConfig = cfg
	configMu.Unlock()
}

// GetCurrentConfig returns a copy of the active configuration.
func GetCurrentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return currentConfig
}

func defaultConfig() Config {
	var cfg Config
	cfg.App.Env = "dev"
	cfg.App.LogLevel = "info"
	cfg.Infra.Mysql.DSN = "root:root@tcp(localhost:3306)/bazaar?charset=utf8mb4&parseTime=True&loc=Local"
	cfg.Infra.Redis.Addr = "localhost:6379"
	cfg.Infra.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Infra.Kafka.CheckoutTopic = "checkout-events"
	cfg.Infra.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	cfg.Infra.Nacos.ServerAddrs = "localhost:8848"
	cfg.Infra.Nacos.Group = "DEFAULT_GROUP"
	cfg.Inventory.Lock.TTL = Duration(10 * time.Second)
	cfg.Inventory.Lock.Retries = 3
	cfg.Inventory.Lock.RetryDelay = Duration(150 * time.Millisecond)
	cfg.Inventory.Sweep.Enabled = true
	cfg.Inventory.Sweep.Interval = Duration(60 * time.Second)
	cfg.Inventory.Sweep.BatchSize = 100
	cfg.Checkout.StepTimeout = Duration(10 * time.Second)
	cfg.Checkout.ReservationTTL = Duration(15 * time.Minute)
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		cfg.Infra.Mysql.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Infra.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Infra.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("JAEGER_ENDPOINT"); v != "" {
		cfg.Infra.Jaeger.Endpoint = v
	}
	if v := os.Getenv("NACOS_SERVER_ADDRS"); v != "" {
		cfg.Infra.Nacos.ServerAddrs = v
	}
	if v := os.Getenv("NACOS_NAMESPACE"); v != "" {
		cfg.Infra.Nacos.Namespace = v
	}
	if v := os.Getenv("NACOS_GROUP"); v != "" {
		cfg.Infra.Nacos.Group = v
	}
	if v := os.Getenv("INTERNAL_SIGNING_SECRET"); v != "" {
		cfg.Security.InternalSecret = v
	}
	if v := os.Getenv("PAYMENT_BASE_URL"); v != "" {
		cfg.Checkout.Payment.BaseURL = v
	}
	if v := os.Getenv("PAYMENT_CLIENT_ID"); v != "" {
		cfg.Checkout.Payment.ClientID = v
	}
	if v := os.Getenv("PAYMENT_CLIENT_SECRET"); v != "" {
		cfg.Checkout.Payment.ClientSecret = v
	}
	// The bypass header is dangerous; production profile forces it off even
	// if the config file says otherwise.
	if cfg.App.Env == "production" {
		cfg.Security.DevBypass = false
	}
}

// getEnv reads an environment variable with a fallback.
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
