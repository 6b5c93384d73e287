package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const (
	DriverSQLite    = "sqlite"
	DriverCassandra = "cassandra"
)

type Config struct {
	Env            string `env:"ENVIRONMENT" envDefault:"development"`
	ServerPort     int    `env:"SERVER_PORT" envDefault:"8080"`
	BasicAuthCreds string `env:"BASIC_AUTH_CREDS"`
	APIKeys        string `env:"API_KEYS"`

	Store struct {
		Driver              string `env:"STORE_DRIVER" envDefault:"sqlite"`
		SQLitePath          string `env:"SQLITE_PATH" envDefault:"substore.sqlite"`
		MaxPaginatedResults int    `env:"MAX_PAGINATED_RESULTS" envDefault:"20000"`
		DefaultFetchSize    int    `env:"DEFAULT_FETCH_SIZE" envDefault:"5000"`
	}
	Cassandra struct {
		Hosts             []string `env:"CASSANDRA_HOSTS" envDefault:"127.0.0.1" envSeparator:","`
		Port              int      `env:"CASSANDRA_PORT" envDefault:"9042"`
		Keyspace          string   `env:"CASSANDRA_KEYSPACE" envDefault:"substore"`
		Username          string   `env:"CASSANDRA_USERNAME"`
		Password          string   `env:"CASSANDRA_PASSWORD"`
		TimeoutSecs       int      `env:"CASSANDRA_TIMEOUT_SECS" envDefault:"10"`
		ReplicationFactor int      `env:"CASSANDRA_REPLICATION_FACTOR" envDefault:"1"`
	}
	Kafka struct {
		Brokers []string `env:"KAFKA_BROKERS" envSeparator:","`
		Topic   string   `env:"KAFKA_TOPIC" envDefault:"subscription-events"`
	}
	Authz struct {
		URL         string `env:"AUTHZ_URL"`
		TimeoutSecs int    `env:"AUTHZ_TIMEOUT_SECS" envDefault:"5"`
	}
	Reconcile struct {
		IntervalSecs   int    `env:"RECONCILE_INTERVAL_SECS" envDefault:"300"`
		MaxAttempts    int    `env:"RECONCILE_MAX_ATTEMPTS" envDefault:"5"`
		AlertRecipient string `env:"RECONCILE_ALERT_RECIPIENT"`
	}
	Mailgun struct {
		Domain      string `env:"MAILGUN_DOMAIN"`
		APIKey      string `env:"MAILGUN_API_KEY"`
		SenderFrom  string `env:"MAILGUN_SENDER_FROM" envDefault:"substore"`
		TimeoutSecs int    `env:"MAILGUN_TIMEOUT_SECS" envDefault:"10"`
	}

	log     *zap.Logger
	creds   map[string]string
	apiKeys map[string]string
}

func NewConfig(log *zap.Logger) *Config {
	// A missing .env is fine; the process environment still applies.
	_ = godotenv.Load()

	cfg := &Config{log: log}
	if err := env.Parse(cfg); err != nil {
		log.Sugar().Panic(err)
	}

	creds, err := parsePairs("BASIC_AUTH_CREDS", cfg.BasicAuthCreds, "user1:pass1,user2:pass2")
	if err != nil {
		if cfg.IsDevelopment() {
			log.Sugar().Infof("%s (credentials will be set to default in development env)", err)
			creds = map[string]string{"admin": "password"}
		} else {
			log.Sugar().Panic(err)
		}
	}
	cfg.creds = creds

	if cfg.APIKeys != "" {
		keys, err := parsePairs("API_KEYS", cfg.APIKeys, "app1:token1,app2:token2")
		if err != nil {
			log.Sugar().Panic(err)
		}
		cfg.apiKeys = keys
	}

	return cfg
}

func (cfg *Config) IsDevelopment() bool {
	return cfg.Env == "development"
}

// GetCreds returns basic auth passwords keyed by user.
func (cfg *Config) GetCreds() map[string]string {
	return cfg.creds
}

// GetAPIKeys returns service tokens keyed by app id.
func (cfg *Config) GetAPIKeys() map[string]string {
	return cfg.apiKeys
}

func (cfg *Config) CassandraTimeout() time.Duration {
	return time.Duration(cfg.Cassandra.TimeoutSecs) * time.Second
}

func (cfg *Config) AuthzTimeout() time.Duration {
	return time.Duration(cfg.Authz.TimeoutSecs) * time.Second
}

func (cfg *Config) ReconcileInterval() time.Duration {
	return time.Duration(cfg.Reconcile.IntervalSecs) * time.Second
}

func (cfg *Config) MailgunTimeout() time.Duration {
	return time.Duration(cfg.Mailgun.TimeoutSecs) * time.Second
}

func parsePairs(name, raw, example string) (map[string]string, error) {
	if raw == "" {
		return nil, fmt.Errorf("%s envvar must be populated", name)
	}

	pairs := strings.Split(raw, ",")
	if len(pairs) == 0 {
		return nil, errors.New(name + " envvar should be filled with comma-separated values -- " + example)
	}

	result := make(map[string]string)
	for _, pair := range pairs {
		kv := strings.Split(pair, ":")
		if len(kv) != 2 {
			return nil, fmt.Errorf("failed to parse '%s', each entry should be delimited by a colon -- %s", pair, example)
		}

		k, v := kv[0], kv[1]
		result[strings.Trim(k, " ")] = strings.Trim(v, " ")
	}

	return result, nil
}
