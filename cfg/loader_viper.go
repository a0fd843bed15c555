package cfg

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Environment variables that override the yaml file. The names match the
// ones the deployment already exports.
var envBindings = map[string][]string{
	"providers.github.access_token":   {"GITHUB_API_KEY", "GITHUB_TOKEN"},
	"providers.gitlab.access_token":   {"GITLAB_ACCESS_TOKEN"},
	"providers.codeberg.access_token": {"CODEBERG_API_KEY"},
	"database.dsn":                    {"POSTGRES_URL", "DATABASE_URL"},
	"database.driver":                 {"DATABASE_DRIVER"},
	"ingest.pages":                    {"INGEST_PAGES"},
	"http.port":                       {"HTTP_PORT", "PORT"},
	"kafka.brokers":                   {"KAFKA_BROKERS"},
	"log.level":                       {"LOG_LEVEL"},
}

type ViperLoader struct {
	v                     *viper.Viper
	paths                 []string
	watch                 bool
	once                  sync.Once
	mu                    sync.RWMutex
	cfg                   *Config
	configChangeCallbacks []func(*Config)
}

// NewViperLoader reads cfg/yaml/mode.yaml (or mode.yaml under any of paths)
// and, when watch is set, reloads it on change.
func NewViperLoader(watch bool, paths ...string) (*ViperLoader, error) {
	if len(paths) == 0 {
		paths = []string{"cfg/yaml", "."}
	}
	return &ViperLoader{
		v:                     viper.New(),
		paths:                 paths,
		watch:                 watch,
		configChangeCallbacks: make([]func(*Config), 0),
	}, nil
}

func (yl *ViperLoader) Load() (*Config, error) {
	var err error
	yl.once.Do(func() {
		err = yl.loadConfig()
		if err == nil && yl.IsWatchChange() {
			yl.v.OnConfigChange(func(e fsnotify.Event) {
				fmt.Printf("[INFO][CONFIG] Config file changed: %s\n", e.Name)
				if errReload := yl.reloadConfig(); errReload != nil {
					fmt.Printf("[ERROR][CONFIG] Failed to reload config: %v\n", errReload)
				}
			})
			yl.v.WatchConfig()
		}
	})
	if err != nil {
		return nil, err
	}

	yl.mu.RLock()
	defer yl.mu.RUnlock()
	return yl.cfg, nil
}

func (yl *ViperLoader) IsWatchChange() bool {
	return yl.watch && yl.v.ConfigFileUsed() != ""
}

func (yl *ViperLoader) RegisterConfigChangeCallback(callback func(*Config)) {
	yl.mu.Lock()
	yl.configChangeCallbacks = append(yl.configChangeCallbacks, callback)
	yl.mu.Unlock()
}

func (yl *ViperLoader) loadConfig() error {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	for _, p := range yl.paths {
		yl.v.AddConfigPath(p)
	}
	yl.v.SetConfigName("mode")
	yl.v.SetConfigType("yaml")
	if err := yl.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("[ERROR][CONFIG] failed to read config file: %w", err)
		}
	}

	for key, envs := range envBindings {
		if err := yl.v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("[ERROR][CONFIG] failed to bind %s: %w", key, err)
		}
	}

	cfg, err := yl.decode()
	if err != nil {
		return err
	}

	yl.mu.Lock()
	yl.cfg = cfg
	yl.mu.Unlock()
	return nil
}

func (yl *ViperLoader) decode() (*Config, error) {
	cfg := &Config{}
	if err := yl.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("[ERROR][CONFIG] failed to unmarshal config: %w", err)
	}
	// KAFKA_BROKERS arrives as a single comma separated string.
	if len(cfg.Kafka.Brokers) == 1 && strings.Contains(cfg.Kafka.Brokers[0], ",") {
		cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers[0])
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

func (yl *ViperLoader) reloadConfig() error {
	cfg, err := yl.decode()
	if err != nil {
		return err
	}

	yl.mu.Lock()
	yl.cfg = cfg
	callbacks := make([]func(*Config), len(yl.configChangeCallbacks))
	copy(callbacks, yl.configChangeCallbacks)
	yl.mu.Unlock()

	for _, callback := range callbacks {
		go callback(cfg)
	}

	fmt.Println("[INFO][CONFIG] Configuration reloaded successfully")
	return nil
}

func splitList(s string) []string {
	out := make([]string, 0)
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
