package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"

	"x-thread-poster/internal/domain"
	"x-thread-poster/internal/infra/metrics"
)

// Селекторы веб-интерфейса X. Меняются платформой редко, но целиком
// определяют работоспособность основного пути.
const (
	composeBoxSelector        = `div[data-testid="tweetTextarea_0"]`
	composeSubmitSelector     = `button[data-testid="tweetButton"]`
	inlineReplySubmitSelector = `button[data-testid="tweetButtonInline"]`
)

var statusLinkPattern = regexp.MustCompile(`/status/(\d+)`)

// Config описывает параметры браузерной автоматизации.
type Config struct {
	Bin        string
	Headless   bool
	BaseURL    string
	CookieFile string
	NavTimeout time.Duration
	ViewportW  int
	ViewportH  int
}

func (c Config) baseURL() string {
	if c.BaseURL == "" {
		return "https://x.com"
	}
	return c.BaseURL
}

func (c Config) navTimeout() time.Duration {
	if c.NavTimeout <= 0 {
		return 30 * time.Second
	}
	return c.NavTimeout
}

// Provider выдаёт сессии автоматизации X. Реализует domain.SessionProvider.
type Provider struct {
	cfg Config
	log zerolog.Logger
}

var _ domain.SessionProvider = (*Provider)(nil)

// NewProvider создаёт провайдер сессий.
func NewProvider(cfg Config, logger zerolog.Logger) *Provider {
	return &Provider{cfg: cfg, log: logger}
}

// Acquire запускает Chrome, подключается к нему и восстанавливает cookie
// аккаунта. Любой сбой на этом этапе — исчерпание основного пути.
func (p *Provider) Acquire(ctx context.Context) (domain.BrowserSession, error) {
	controlURL, err := launchChrome(p.cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: запуск chrome: %v", domain.ErrPathExhausted, err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("%w: подключение к chrome: %v", domain.ErrPathExhausted, err)
	}

	if err := loadCookies(browser, p.cfg.CookieFile); err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("%w: cookie аккаунта: %v", domain.ErrPathExhausted, err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: p.cfg.baseURL()})
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("%w: открытие страницы: %v", domain.ErrPathExhausted, err)
	}

	if p.cfg.ViewportW > 0 && p.cfg.ViewportH > 0 {
		if err := (proto.EmulationSetDeviceMetricsOverride{
			Width:             p.cfg.ViewportW,
			Height:            p.cfg.ViewportH,
			DeviceScaleFactor: 1.0,
			Mobile:            false,
		}).Call(page); err != nil {
			p.log.Warn().Err(err).Msg("browser: не удалось задать viewport")
		}
	}

	return &Session{cfg: p.cfg, browser: browser, page: page, log: p.log}, nil
}

func launchChrome(cfg Config) (string, error) {
	launch := launcher.New().Headless(cfg.Headless)
	if cfg.Bin != "" {
		launch = launch.Bin(cfg.Bin)
	}
	return launch.Launch()
}

func loadCookies(browser *rod.Browser, cookieFile string) error {
	if cookieFile == "" {
		return nil
	}
	data, err := os.ReadFile(cookieFile)
	if err != nil {
		return fmt.Errorf("чтение файла cookie: %w", err)
	}
	var cookies []*proto.NetworkCookieParam
	if err := json.Unmarshal(data, &cookies); err != nil {
		return fmt.Errorf("разбор файла cookie: %w", err)
	}
	if len(cookies) == 0 {
		return nil
	}
	return browser.SetCookies(cookies)
}

// Session — одна сессия автоматизации X. Сессию использует ровно один проход
// публикации; методы не безопасны для конкурентных вызовов.
type Session struct {
	cfg     Config
	browser *rod.Browser
	page    *rod.Page
	log     zerolog.Logger
}

var _ domain.BrowserSession = (*Session)(nil)

// SubmitPost публикует текст как новый пост верхнего уровня.
func (s *Session) SubmitPost(ctx context.Context, text string) (string, error) {
	start := time.Now()
	id, err := s.submit(ctx, s.cfg.baseURL()+"/compose/post", text, composeSubmitSelector, "")
	metrics.ObserveNetworkRequest("browser", "submit_post", "x", start, err)
	return id, err
}

// SubmitReply публикует текст как ответ на пост parentID.
func (s *Session) SubmitReply(ctx context.Context, text, parentID string) (string, error) {
	start := time.Now()
	statusURL := fmt.Sprintf("%s/i/status/%s", s.cfg.baseURL(), parentID)
	id, err := s.submit(ctx, statusURL, text, inlineReplySubmitSelector, parentID)
	metrics.ObserveNetworkRequest("browser", "submit_reply", "x", start, err)
	return id, err
}

// Close закрывает страницу и браузер.
func (s *Session) Close() error {
	if s.page != nil {
		_ = s.page.Close()
	}
	if s.browser != nil {
		return s.browser.Close()
	}
	return nil
}

func (s *Session) submit(ctx context.Context, url, text, submitSelector, excludeID string) (string, error) {
	page := s.page.Context(ctx)
	if err := page.Timeout(s.cfg.navTimeout()).Navigate(url); err != nil {
		return "", fmt.Errorf("навигация %s: %w", url, err)
	}
	if err := page.Timeout(s.cfg.navTimeout()).WaitLoad(); err != nil {
		return "", fmt.Errorf("загрузка страницы: %w", err)
	}

	// Поле ввода — индикатор того, что интерфейс вообще доступен: если его
	// нет, дальше автоматизировать нечего.
	box, err := page.Timeout(s.cfg.navTimeout()).Element(composeBoxSelector)
	if err != nil {
		return "", fmt.Errorf("%w: поле ввода не найдено: %v", domain.ErrPathExhausted, err)
	}
	if err := box.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return "", fmt.Errorf("фокус на поле ввода: %w", err)
	}
	if err := box.Input(text); err != nil {
		return "", fmt.Errorf("ввод текста: %w", err)
	}

	submit, err := page.Timeout(s.cfg.navTimeout()).Element(submitSelector)
	if err != nil {
		return "", fmt.Errorf("кнопка отправки не найдена: %w", err)
	}
	if err := submit.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return "", fmt.Errorf("клик по кнопке отправки: %w", err)
	}

	id, err := s.waitTweetID(ctx, excludeID)
	if err != nil {
		return "", fmt.Errorf("подтверждение публикации: %w", err)
	}
	return id, nil
}

// waitTweetID опрашивает страницу, пока не появится ссылка на новый пост.
// Snowflake-id растут монотонно, поэтому из кандидатов берётся наибольший.
func (s *Session) waitTweetID(ctx context.Context, excludeID string) (string, error) {
	const attempts = 20
	for i := 0; i < attempts; i++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}

		ids, err := s.collectStatusIDs(ctx)
		if err != nil {
			continue
		}
		best := ""
		for _, id := range ids {
			if id == excludeID {
				continue
			}
			if snowflakeLess(best, id) {
				best = id
			}
		}
		if best != "" {
			return best, nil
		}
	}
	return "", fmt.Errorf("пост не появился на странице")
}

func (s *Session) collectStatusIDs(ctx context.Context) ([]string, error) {
	res, err := s.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS: `
		() => Array.from(document.querySelectorAll('a[href*="/status/"]'))
			.map(a => a.getAttribute('href') || '')
		`,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil || res == nil {
		return nil, err
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var hrefs []string
	if err := json.Unmarshal(raw, &hrefs); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(hrefs))
	for _, href := range hrefs {
		if match := statusLinkPattern.FindStringSubmatch(href); match != nil {
			ids = append(ids, match[1])
		}
	}
	return ids, nil
}

func snowflakeLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
