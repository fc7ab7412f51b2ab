package history

import (
	"time"

	"x-thread-poster/internal/domain"
)

// CacheHookHistory хранит недавно использованные хуки в TTL-кэше, чтобы
// соседние треды не открывались одним и тем же маркером.
type CacheHookHistory struct {
	cache  domain.Cache
	prefix string
	ttl    time.Duration
}

// NewCacheHookHistory создаёт историю хуков поверх кэша.
func NewCacheHookHistory(cache domain.Cache, ttl time.Duration) *CacheHookHistory {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &CacheHookHistory{cache: cache, prefix: "posting:hook:", ttl: ttl}
}

// WasRecent сообщает, использовался ли хук недавно.
func (h *CacheHookHistory) WasRecent(hook string) bool {
	if h.cache == nil {
		return false
	}
	_, err := h.cache.Get(h.prefix + hook)
	return err == nil
}

// Remember помечает хук как использованный.
func (h *CacheHookHistory) Remember(hook string) {
	if h.cache == nil {
		return
	}
	_ = h.cache.Set(h.prefix+hook, []byte("1"), h.ttl)
}
