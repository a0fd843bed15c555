package cfg

import "time"

type MockLoader struct {
	Config *Config
}

func NewMockLoader() (*MockLoader, error) {
	return &MockLoader{}, nil
}

func (ml *MockLoader) Load() (*Config, error) {
	if ml.Config != nil {
		return ml.Config, nil
	}

	config := &Config{
		// App
		App: App{
			Name:    "dothub-crawler",
			Version: "0.0.1",
		},

		// Database
		Database: Database{
			Driver:                "sqlite",
			Dsn:                   "dothub.sqlite",
			MaxIdleConnection:     1,
			MaxOpenConnection:     1,
			MaxLifeTimeConnection: 3600,
		},

		// Ingest
		Ingest: Ingest{
			Pages:          1,
			RequestTimeout: 5 * time.Second,
			ThrottleDelay:  time.Millisecond,
			Retry: Retry{
				MaxRetries:     -1,
				InitialBackoff: time.Millisecond,
				MaxBackoff:     10 * time.Millisecond,
				MaxWait:        10 * time.Millisecond,
			},
		},
	}
	config.ApplyDefaults()
	return config, nil
}
