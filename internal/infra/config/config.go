package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"UTC"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Browser struct {
		Bin        string        `envconfig:"BROWSER_BIN"`
		Headless   bool          `envconfig:"BROWSER_HEADLESS" default:"true"`
		BaseURL    string        `envconfig:"X_BASE_URL" default:"https://x.com"`
		CookieFile string        `envconfig:"X_COOKIE_FILE"`
		NavTimeout time.Duration `envconfig:"BROWSER_NAV_TIMEOUT" default:"30s"`
		ViewportW  int           `envconfig:"BROWSER_VIEWPORT_W" default:"1280"`
		ViewportH  int           `envconfig:"BROWSER_VIEWPORT_H" default:"900"`
	} `envconfig:""`

	Posting struct {
		InterPostDelay    time.Duration `envconfig:"INTER_POST_DELAY" default:"5s"`
		SegmentTimeout    time.Duration `envconfig:"SEGMENT_TIMEOUT" default:"45s"`
		MinThreadInterval time.Duration `envconfig:"MIN_THREAD_INTERVAL" default:"30m"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	RabbitURL string `envconfig:"RABBITMQ_URL"`

	Queues struct {
		Posts string `envconfig:"POST_QUEUE_KEY" default:"post_jobs"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
