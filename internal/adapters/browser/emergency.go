package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"

	"x-thread-poster/internal/domain"
	"x-thread-poster/internal/infra/metrics"
)

// Emergency — аварийный путь публикации: свежий headless-браузер на один
// пост верхнего уровня, без переиспользования сессии и без поддержки тредов.
type Emergency struct {
	cfg Config
	log zerolog.Logger
}

var _ domain.EmergencyPublisher = (*Emergency)(nil)

// NewEmergency создаёт аварийный публикатор. Headless включается принудительно,
// таймауты ужимаются: этот путь должен стоить дешевле основного.
func NewEmergency(cfg Config, logger zerolog.Logger) *Emergency {
	cfg.Headless = true
	if cfg.NavTimeout <= 0 || cfg.NavTimeout > 20*time.Second {
		cfg.NavTimeout = 20 * time.Second
	}
	cfg.ViewportW = 1024
	cfg.ViewportH = 768
	return &Emergency{cfg: cfg, log: logger}
}

// SubmitPost публикует один пост верхнего уровня и полностью сворачивает
// браузер независимо от исхода.
func (e *Emergency) SubmitPost(ctx context.Context, text string) (string, error) {
	start := time.Now()
	id, err := e.post(ctx, text)
	metrics.ObserveNetworkRequest("browser_emergency", "submit_post", "x", start, err)
	if err != nil {
		e.log.Error().Err(err).Msg("emergency: публикация не удалась")
		return "", err
	}
	e.log.Info().Str("tweet_id", id).Msg("emergency: пост опубликован")
	return id, nil
}

func (e *Emergency) post(ctx context.Context, text string) (string, error) {
	launch := launcher.New().Headless(true).Leakless(true)
	if e.cfg.Bin != "" {
		launch = launch.Bin(e.cfg.Bin)
	}
	controlURL, err := launch.Launch()
	if err != nil {
		return "", fmt.Errorf("запуск chrome: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return "", fmt.Errorf("подключение к chrome: %w", err)
	}
	defer func() {
		if err := browser.Close(); err != nil {
			e.log.Warn().Err(err).Msg("emergency: ошибка закрытия браузера")
		}
	}()

	if err := loadCookies(browser, e.cfg.CookieFile); err != nil {
		return "", fmt.Errorf("cookie аккаунта: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: e.cfg.baseURL() + "/compose/post"})
	if err != nil {
		return "", fmt.Errorf("открытие страницы: %w", err)
	}

	session := &Session{cfg: e.cfg, browser: browser, page: page, log: e.log}
	return session.submit(ctx, e.cfg.baseURL()+"/compose/post", text, composeSubmitSelector, "")
}
