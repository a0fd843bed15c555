package cfg

import "time"

type (
	App struct {
		Name    string `mapstructure:"name"`
		Version string `mapstructure:"version"`
	}

	Log struct {
		Level string `mapstructure:"level"`
	}

	// Database.Driver is one of "postgres", "mysql" or "sqlite". When Dsn is
	// empty the mysql DSN is assembled from Host/Port/Username/Password.
	Database struct {
		Driver                string `mapstructure:"driver"`
		Dsn                   string `mapstructure:"dsn"`
		Host                  string `mapstructure:"host"`
		Port                  string `mapstructure:"port"`
		Username              string `mapstructure:"username"`
		Password              string `mapstructure:"password"`
		Database              string `mapstructure:"database"`
		MaxIdleConnection     int    `mapstructure:"max_idle_connection"`
		MaxOpenConnection     int    `mapstructure:"max_open_connection"`
		MaxLifeTimeConnection int    `mapstructure:"max_life_time_connection"`
	}

	Provider struct {
		Disabled          bool     `mapstructure:"disabled"`
		AccessToken       string   `mapstructure:"access_token"`
		ApiUrl            string   `mapstructure:"api_url"`
		WebHost           string   `mapstructure:"web_host"`
		Queries           []string `mapstructure:"queries"`
		PerPage           int      `mapstructure:"per_page"`
		RequestsPerSecond int      `mapstructure:"requests_per_second"`
		Workers           int      `mapstructure:"workers"`
	}

	Providers struct {
		Github   Provider `mapstructure:"github"`
		Gitlab   Provider `mapstructure:"gitlab"`
		Codeberg Provider `mapstructure:"codeberg"`
	}

	Retry struct {
		MaxRetries        int           `mapstructure:"max_retries"`
		InitialBackoff    time.Duration `mapstructure:"initial_backoff"`
		MaxBackoff        time.Duration `mapstructure:"max_backoff"`
		BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
		MaxWait           time.Duration `mapstructure:"max_wait"`
	}

	Ingest struct {
		Pages          int           `mapstructure:"pages"`
		RequestTimeout time.Duration `mapstructure:"request_timeout"`
		ThrottleDelay  time.Duration `mapstructure:"throttle_delay"`
		Retry          Retry         `mapstructure:"retry"`
	}

	Rule struct {
		Pattern string `mapstructure:"pattern"`
		Tag     string `mapstructure:"tag"`
	}

	Detector struct {
		CacheSize int    `mapstructure:"cache_size"`
		Rules     []Rule `mapstructure:"rules"`
	}

	Http struct {
		Port int `mapstructure:"port"`
	}

	Kafka struct {
		Brokers   []string `mapstructure:"brokers"`
		TopicRepo string   `mapstructure:"topic_repo"`
		TopicRun  string   `mapstructure:"topic_run"`
	}
)

type Config struct {
	App       App       `mapstructure:"app"`
	Log       Log       `mapstructure:"log"`
	Database  Database  `mapstructure:"database"`
	Providers Providers `mapstructure:"providers"`
	Ingest    Ingest    `mapstructure:"ingest"`
	Detector  Detector  `mapstructure:"detector"`
	Http      Http      `mapstructure:"http"`
	Kafka     Kafka     `mapstructure:"kafka"`
}

// ApplyDefaults fills zero values with the values the crawler was tuned for.
func (c *Config) ApplyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "dothub-crawler"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Ingest.Pages <= 0 {
		c.Ingest.Pages = 10
	}
	if c.Ingest.RequestTimeout <= 0 {
		c.Ingest.RequestTimeout = 30 * time.Second
	}
	if c.Ingest.ThrottleDelay <= 0 {
		c.Ingest.ThrottleDelay = 100 * time.Millisecond
	}
	r := &c.Ingest.Retry
	// A negative MaxRetries disables retries.
	if r.MaxRetries == 0 {
		r.MaxRetries = 3
	}
	if r.InitialBackoff <= 0 {
		r.InitialBackoff = time.Second
	}
	if r.MaxBackoff <= 0 {
		r.MaxBackoff = 2 * time.Minute
	}
	if r.BackoffMultiplier < 1 {
		r.BackoffMultiplier = 2
	}
	if r.MaxWait <= 0 {
		r.MaxWait = 2 * time.Minute
	}
	if c.Detector.CacheSize <= 0 {
		c.Detector.CacheSize = 4096
	}
	if c.Http.Port == 0 {
		c.Http.Port = 8080
	}
	if c.Kafka.TopicRepo == "" {
		c.Kafka.TopicRepo = "dothub.repositories"
	}
	if c.Kafka.TopicRun == "" {
		c.Kafka.TopicRun = "dothub.runs"
	}
	defaultProvider(&c.Providers.Github, "https://api.github.com/", "github.com", 100,
		"dotfiles",
		"dotfiles in:description",
		"kitty in:name dotfiles in:name neovim in:name tmux in:name",
		"dotfiles kitty neovim tmux in:name,description",
	)
	defaultProvider(&c.Providers.Gitlab, "https://gitlab.com/api/v4", "gitlab.com", 100, "dotfiles")
	defaultProvider(&c.Providers.Codeberg, "https://codeberg.org/api/v1", "codeberg.org", 50, "dotfiles")
}

func defaultProvider(p *Provider, apiUrl, webHost string, maxPerPage int, queries ...string) {
	if p.ApiUrl == "" {
		p.ApiUrl = apiUrl
	}
	if p.WebHost == "" {
		p.WebHost = webHost
	}
	if len(p.Queries) == 0 {
		p.Queries = queries
	}
	if p.PerPage <= 0 || p.PerPage > maxPerPage {
		p.PerPage = maxPerPage
	}
	if p.RequestsPerSecond <= 0 {
		p.RequestsPerSecond = 5
	}
	if p.Workers <= 0 {
		p.Workers = 4
	}
}
