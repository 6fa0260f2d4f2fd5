// Package config loads server settings from defaults, an optional YAML file,
// a .env file and STREAMDEMO_* environment variables, in that order of
// precedence (later wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STREAMDEMO_"

// Queue backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQS    = "sqs"
)

// Config is the complete server configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Stream StreamConfig `yaml:"stream"`
	Queue  QueueConfig  `yaml:"queue"`
	Users  UsersConfig  `yaml:"users"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// SubmitRate is the sustained number of queue submissions per second;
	// 0 disables throttling.
	SubmitRate  float64 `yaml:"submit_rate"`
	SubmitBurst int     `yaml:"submit_burst"`
}

// StreamConfig controls pacing and content of the streaming endpoints.
type StreamConfig struct {
	Model         string        `yaml:"model"`
	Paragraphs    int           `yaml:"paragraphs"`
	RawParagraphs int           `yaml:"raw_paragraphs"`
	RawCharDelay  time.Duration `yaml:"raw_char_delay"`
	ThinkMin      time.Duration `yaml:"think_min"`
	ThinkMax      time.Duration `yaml:"think_max"`
	TokenMin      time.Duration `yaml:"token_min"`
	TokenMax      time.Duration `yaml:"token_max"`
	// HighWater is the buffered byte count at which a response reports
	// backpressure.
	HighWater int `yaml:"high_water"`
}

// QueueConfig selects and tunes the job queue.
type QueueConfig struct {
	Backend      string        `yaml:"backend"`
	Name         string        `yaml:"name"`
	JobDuration  time.Duration `yaml:"job_duration"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxAttempts  int           `yaml:"max_attempts"`
	// VisibilityTimeout makes the memory backend hand out unacknowledged
	// jobs again after this long. Zero disables redelivery. When set it must
	// exceed JobDuration.
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
	// DeadLetter keeps jobs that ran out of attempts in the memory backend.
	DeadLetter bool `yaml:"dead_letter"`
	Redis        RedisConfig   `yaml:"redis"`
	SQS          SQSConfig     `yaml:"sqs"`
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	Namespace string `yaml:"namespace"`
}

// SQSConfig configures the SQS backend.
type SQSConfig struct {
	QueueURL          string `yaml:"queue_url"`
	Region            string `yaml:"region"`
	Endpoint          string `yaml:"endpoint"`
	WaitTimeSeconds   int    `yaml:"wait_time_seconds"`
	VisibilityTimeout int    `yaml:"visibility_timeout"`
	FIFO              bool   `yaml:"fifo"`
}

// UsersConfig controls the generated user directory.
type UsersConfig struct {
	Count int    `yaml:"count"`
	Seed  uint64 `yaml:"seed"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            3000,
			ReadTimeout:     10 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			SubmitRate:      20,
			SubmitBurst:     40,
		},
		Stream: StreamConfig{
			Model:         "mock-gpt-1",
			Paragraphs:    3,
			RawParagraphs: 16,
			RawCharDelay:  5 * time.Millisecond,
			ThinkMin:      2000 * time.Millisecond,
			ThinkMax:      3000 * time.Millisecond,
			TokenMin:      80 * time.Millisecond,
			TokenMax:      100 * time.Millisecond,
			HighWater:     16 << 10,
		},
		Queue: QueueConfig{
			Backend:      BackendMemory,
			Name:         "jobs",
			JobDuration:  2 * time.Second,
			PollInterval: time.Second,
			MaxAttempts:  1,
			Redis:        RedisConfig{Addr: "localhost:6379", Namespace: "streamdemo"},
			SQS:          SQSConfig{WaitTimeSeconds: 20, VisibilityTimeout: 30},
		},
		Users: UsersConfig{Count: 1000, Seed: 1},
	}
}

// Load reads path (if non-empty), then ./.env (if present), then the
// process environment.
func Load(path string) (Config, error) {
	return load(path, ".env", os.LookupEnv)
}

func load(path, envFile string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	dotenv := map[string]string{}
	if envFile != "" {
		m, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			dotenv = m
		case errors.Is(err, fs.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("read %s: %w", envFile, err)
		}
	}
	env := func(key string) (string, bool) {
		if v, ok := lookup(EnvPrefix + key); ok {
			return v, true
		}
		v, ok := dotenv[EnvPrefix+key]
		return v, ok
	}
	if err := applyEnv(&cfg, env); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, env func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := env(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := env(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := env(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}

	num("PORT", &cfg.Server.Port)
	if v, ok := env("SUBMIT_RATE"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sSUBMIT_RATE: %w", EnvPrefix, err))
		} else {
			cfg.Server.SubmitRate = f
		}
	}
	num("SUBMIT_BURST", &cfg.Server.SubmitBurst)

	str("MODEL", &cfg.Stream.Model)
	num("PARAGRAPHS", &cfg.Stream.Paragraphs)
	dur("RAW_CHAR_DELAY", &cfg.Stream.RawCharDelay)
	num("HIGH_WATER", &cfg.Stream.HighWater)

	str("QUEUE_BACKEND", &cfg.Queue.Backend)
	dur("JOB_DURATION", &cfg.Queue.JobDuration)
	dur("VISIBILITY_TIMEOUT", &cfg.Queue.VisibilityTimeout)
	if v, ok := env("DEAD_LETTER"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sDEAD_LETTER: %w", EnvPrefix, err))
		} else {
			cfg.Queue.DeadLetter = b
		}
	}
	str("REDIS_ADDR", &cfg.Queue.Redis.Addr)
	str("REDIS_USERNAME", &cfg.Queue.Redis.Username)
	str("REDIS_PASSWORD", &cfg.Queue.Redis.Password)
	num("REDIS_DB", &cfg.Queue.Redis.DB)
	str("SQS_QUEUE_URL", &cfg.Queue.SQS.QueueURL)
	str("SQS_REGION", &cfg.Queue.SQS.Region)
	str("SQS_ENDPOINT", &cfg.Queue.SQS.Endpoint)

	num("USERS_COUNT", &cfg.Users.Count)
	if v, ok := env("USERS_SEED"); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sUSERS_SEED: %w", EnvPrefix, err))
		} else {
			cfg.Users.Seed = n
		}
	}
	return errors.Join(errs...)
}

// Validate reports settings the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.SubmitRate < 0 {
		errs = append(errs, fmt.Errorf("server.submit_rate must not be negative"))
	}
	if c.Stream.ThinkMin > c.Stream.ThinkMax {
		errs = append(errs, fmt.Errorf("stream.think_min %v exceeds think_max %v", c.Stream.ThinkMin, c.Stream.ThinkMax))
	}
	if c.Stream.TokenMin > c.Stream.TokenMax {
		errs = append(errs, fmt.Errorf("stream.token_min %v exceeds token_max %v", c.Stream.TokenMin, c.Stream.TokenMax))
	}
	if c.Stream.RawCharDelay < 0 {
		errs = append(errs, fmt.Errorf("stream.raw_char_delay must not be negative"))
	}
	if c.Queue.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("queue.max_attempts must be at least 1"))
	}
	switch c.Queue.Backend {
	case BackendMemory:
		if c.Queue.VisibilityTimeout < 0 {
			errs = append(errs, fmt.Errorf("queue.visibility_timeout must not be negative"))
		} else if c.Queue.VisibilityTimeout > 0 && c.Queue.VisibilityTimeout <= c.Queue.JobDuration {
			errs = append(errs, fmt.Errorf("queue.visibility_timeout %v must exceed queue.job_duration %v", c.Queue.VisibilityTimeout, c.Queue.JobDuration))
		}
	case BackendRedis:
		if c.Queue.Redis.Addr == "" {
			errs = append(errs, fmt.Errorf("queue.redis.addr is required for the redis backend"))
		}
	case BackendSQS:
		if c.Queue.SQS.QueueURL == "" {
			errs = append(errs, fmt.Errorf("queue.sqs.queue_url is required for the sqs backend"))
		}
		if vis := time.Duration(c.Queue.SQS.VisibilityTimeout) * time.Second; vis <= c.Queue.JobDuration {
			errs = append(errs, fmt.Errorf("queue.sqs.visibility_timeout %v must exceed queue.job_duration %v", vis, c.Queue.JobDuration))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown queue.backend %q", c.Queue.Backend))
	}
	if c.Users.Count < 0 {
		errs = append(errs, fmt.Errorf("users.count must not be negative"))
	}
	return errors.Join(errs...)
}
