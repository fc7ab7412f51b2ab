package posting

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// numberingThreshold — нумерация i/N добавляется только тредам длиннее этого значения.
const numberingThreshold = 3

// wordBoundaryShare — минимальная доля лимита, которую должен сохранить
// перенос по границе слова; иначе жёсткий срез.
const wordBoundaryShare = 0.8

var (
	discoveryHooks = []string{"🚨 ", "🔥 ", "⚡️ "}
	explainerHooks = []string{"🧵 ", "👇 ", "📌 "}
	neutralHooks   = []string{"💡 ", "✨ "}

	closingPrompts = []string{
		"\n\nWhat do you think?",
		"\n\nThoughts? Let me know below 👇",
		"\n\nShare this if you found it useful 🔁",
	}

	ctaPhrases = []string{"follow", "retweet", "share", "let me know", "what do you think", "drop a comment"}

	numberingPattern = regexp.MustCompile(`^\d+/\d+ `)
)

// Rand — точка инъекции псевдослучайности нормализатора. Реализуется *rand.Rand.
type Rand interface {
	Intn(n int) int
}

// HookHistory помнит недавно использованные хуки, чтобы соседние треды
// не открывались одинаково. Явный контекст вместо глобального состояния.
type HookHistory interface {
	WasRecent(hook string) bool
	Remember(hook string)
}

// Normalizer приводит сегменты к формату платформы: усечение по лимиту,
// нумерация треда, хук на первом сегменте и вовлекающая концовка на последнем.
type Normalizer struct {
	limit   int
	rnd     Rand
	history HookHistory
}

// NewNormalizer создаёт нормализатор. history может быть nil.
func NewNormalizer(limit int, rnd Rand, history HookHistory) *Normalizer {
	if limit <= 0 {
		limit = SegmentCharLimit
	}
	return &Normalizer{limit: limit, rnd: rnd, history: history}
}

// Normalize возвращает новый срез; вход не изменяется. Детерминирован при
// фиксированном Rand. Каждый сегмент результата гарантированно ≤ лимита.
func (n *Normalizer) Normalize(segments []string, isThread bool) []string {
	out := make([]string, len(segments))
	for i, segment := range segments {
		out[i] = Truncate(strings.TrimSpace(sanitize(segment)), n.limit)
	}

	if len(out) == 0 || !isThread {
		return out
	}

	if len(out) > numberingThreshold {
		for i := 1; i < len(out); i++ {
			if !numberingPattern.MatchString(out[i]) {
				out[i] = Truncate(fmt.Sprintf("%d/%d %s", i+1, len(out), out[i]), n.limit)
			}
		}
	}

	out[0] = Truncate(n.ensureHook(out[0]), n.limit)
	last := len(out) - 1
	out[last] = n.ensureClosing(out[last])
	return out
}

// TruncatedIndices возвращает индексы сегментов, которые Normalize усечёт.
func (n *Normalizer) TruncatedIndices(segments []string) []int {
	var indices []int
	for i, segment := range segments {
		if len([]rune(segment)) > n.limit {
			indices = append(indices, i)
		}
	}
	return indices
}

// ensureHook добавляет маркер внимания на первый сегмент, если его ещё нет.
// Семейство маркеров выбирается по ключевым словам текста, конкретный маркер —
// псевдослучайно с учётом недавней истории.
func (n *Normalizer) ensureHook(first string) string {
	if hasHook(first) {
		return first
	}

	lowered := strings.ToLower(first)
	family := neutralHooks
	switch {
	case strings.Contains(lowered, "breakthrough") || strings.Contains(lowered, "discovery") || strings.Contains(lowered, "just announced"):
		family = discoveryHooks
	case strings.Contains(lowered, "explain") || strings.Contains(lowered, "thread") || strings.Contains(lowered, "how to"):
		family = explainerHooks
	}

	hook := n.pickFrom(family)
	return hook + first
}

// ensureClosing добавляет вовлекающую концовку, если последний сегмент не
// заканчивается вопросом и не содержит призыва к действию. Концовка
// добавляется только если итог помещается в лимит.
func (n *Normalizer) ensureClosing(last string) string {
	if strings.Contains(last, "?") {
		return last
	}
	lowered := strings.ToLower(last)
	for _, phrase := range ctaPhrases {
		if strings.Contains(lowered, phrase) {
			return last
		}
	}

	prompt := n.pickFrom(closingPrompts)
	if len([]rune(last))+len([]rune(prompt)) > n.limit {
		return last
	}
	return last + prompt
}

func (n *Normalizer) pickFrom(options []string) string {
	idx := 0
	if n.rnd != nil {
		idx = n.rnd.Intn(len(options))
	}
	if n.history != nil {
		for offset := 0; offset < len(options); offset++ {
			candidate := options[(idx+offset)%len(options)]
			if !n.history.WasRecent(candidate) {
				n.history.Remember(candidate)
				return candidate
			}
		}
	}
	return options[idx]
}

// sanitize убирает управляющие символы, которые веб-интерфейс не принимает.
// Переводы строк сохраняются.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

func hasHook(s string) bool {
	for _, family := range [][]string{discoveryHooks, explainerHooks, neutralHooks} {
		for _, hook := range family {
			if strings.HasPrefix(s, strings.TrimSpace(hook)) {
				return true
			}
		}
	}
	return false
}

// Truncate усекает текст до лимита. Предпочитает границу слова, если она
// сохраняет не меньше 80% лимита; иначе жёсткий срез с многоточием.
// Результат всегда ≤ limit рун.
func Truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}

	minCut := int(float64(limit) * wordBoundaryShare)
	for i := limit; i > minCut; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return strings.TrimSpace(string(runes[:i-1]))
		}
	}
	return string(runes[:limit-3]) + "..."
}
