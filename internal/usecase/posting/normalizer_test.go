package posting

import (
	"strings"
	"testing"
)

type fixedRand struct {
	v int
}

func (f fixedRand) Intn(n int) int { return f.v % n }

func newTestNormalizer(v int) *Normalizer {
	return NewNormalizer(SegmentCharLimit, fixedRand{v: v}, nil)
}

func TestTruncateUnderLimitUntouched(t *testing.T) {
	text := "Hello world"
	if got := Truncate(text, SegmentCharLimit); got != text {
		t.Fatalf("короткий текст не должен меняться: %q", got)
	}
}

func TestTruncatePrefersWordBoundary(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("word ", 80))
	got := Truncate(text, SegmentCharLimit)
	if length := len([]rune(got)); length > SegmentCharLimit {
		t.Fatalf("результат превышает лимит: %d", length)
	}
	if strings.HasSuffix(got, "...") {
		t.Fatalf("при наличии границы слова жёсткий срез не нужен: %q", got)
	}
	if !strings.HasSuffix(got, "word") {
		t.Fatalf("ожидали срез по границе слова, получили %q", got[len(got)-10:])
	}
}

func TestTruncateHardCut(t *testing.T) {
	text := strings.Repeat("a", 400)
	got := Truncate(text, SegmentCharLimit)
	if length := len([]rune(got)); length != SegmentCharLimit {
		t.Fatalf("ожидали ровно %d рун, получили %d", SegmentCharLimit, length)
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("ожидали многоточие в конце: %q", got[len(got)-5:])
	}
}

func TestTruncateBoundForArbitraryInput(t *testing.T) {
	inputs := []string{
		strings.Repeat("ж", 1000),
		strings.Repeat("пример текста ", 100),
		strings.Repeat("a", SegmentCharLimit),
		strings.Repeat("a", SegmentCharLimit+1),
	}
	for i, input := range inputs {
		got := Truncate(input, SegmentCharLimit)
		if length := len([]rune(got)); length > SegmentCharLimit {
			t.Fatalf("вход %d: длина %d превышает лимит", i, length)
		}
	}
}

func TestNormalizeSingleUnchanged(t *testing.T) {
	n := newTestNormalizer(0)
	got := n.Normalize([]string{"Hello world"}, false)
	if len(got) != 1 || got[0] != "Hello world" {
		t.Fatalf("одиночный пост не должен меняться: %v", got)
	}
}

func TestNormalizeStripsControlCharacters(t *testing.T) {
	n := newTestNormalizer(0)
	got := n.Normalize([]string{"Hello\x00 \x1bworld\nsecond line"}, false)
	if got[0] != "Hello world\nsecond line" {
		t.Fatalf("управляющие символы должны быть убраны: %q", got[0])
	}
}

func TestNormalizeAddsNumbering(t *testing.T) {
	n := newTestNormalizer(0)
	segments := []string{"Открытие дня?", "второй", "третий", "четвёртый?"}
	got := n.Normalize(segments, true)
	if !strings.HasPrefix(got[1], "2/4 ") {
		t.Fatalf("ожидали нумерацию 2/4, получили %q", got[1])
	}
	if !strings.HasPrefix(got[3], "4/4 ") {
		t.Fatalf("ожидали нумерацию 4/4, получили %q", got[3])
	}
	if strings.HasPrefix(got[0], "1/4") {
		t.Fatalf("первый сегмент не нумеруется: %q", got[0])
	}
}

func TestNormalizeSkipsNumberingForShortThread(t *testing.T) {
	n := newTestNormalizer(0)
	got := n.Normalize([]string{"раз?", "два", "три?"}, true)
	if strings.HasPrefix(got[1], "2/3") {
		t.Fatalf("тред из 3 сегментов не нумеруется: %q", got[1])
	}
}

func TestNormalizeAddsDiscoveryHook(t *testing.T) {
	n := newTestNormalizer(1)
	got := n.Normalize([]string{"A major breakthrough in robotics?", "details?"}, true)
	if !strings.HasPrefix(got[0], discoveryHooks[1]) {
		t.Fatalf("ожидали хук %q, получили %q", discoveryHooks[1], got[0])
	}
}

func TestNormalizeKeepsExistingHook(t *testing.T) {
	n := newTestNormalizer(0)
	first := "🧵 How it works?"
	got := n.Normalize([]string{first, "second?"}, true)
	if got[0] != first {
		t.Fatalf("существующий хук не должен дублироваться: %q", got[0])
	}
}

func TestNormalizeAddsClosingPrompt(t *testing.T) {
	n := newTestNormalizer(0)
	got := n.Normalize([]string{"💡 интро?", "середина", "финал без вопроса"}, true)
	last := got[len(got)-1]
	if last == "финал без вопроса" {
		t.Fatalf("ожидали вовлекающую концовку, получили %q", last)
	}
	if !strings.HasSuffix(last, closingPrompts[0]) {
		t.Fatalf("ожидали концовку %q, получили %q", closingPrompts[0], last)
	}
}

func TestNormalizeKeepsQuestionEnding(t *testing.T) {
	n := newTestNormalizer(0)
	got := n.Normalize([]string{"💡 интро?", "What do you think?"}, true)
	if got[1] != "What do you think?" {
		t.Fatalf("сегмент с вопросом не должен меняться: %q", got[1])
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	n := newTestNormalizer(0)
	segments := []string{
		"A breakthrough discovery in materials science",
		strings.Repeat("very long segment ", 30),
		"middle part",
		"final thoughts on the subject",
	}
	first := n.Normalize(segments, true)
	second := n.Normalize(first, true)
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("сегмент %d изменился при повторной нормализации:\n%q\n%q", i, first[i], second[i])
		}
	}
}

func TestNormalizeRespectsLimitEverywhere(t *testing.T) {
	n := newTestNormalizer(2)
	segments := []string{
		strings.Repeat("breakthrough ", 40),
		strings.Repeat("б", 500),
		strings.Repeat("tail ", 100),
	}
	got := n.Normalize(segments, true)
	for i, segment := range got {
		if length := len([]rune(segment)); length > SegmentCharLimit {
			t.Fatalf("сегмент %d превышает лимит: %d", i, length)
		}
	}
}

func TestNormalizeHookHistoryAvoidsRepeat(t *testing.T) {
	hist := &memHistory{recent: map[string]bool{neutralHooks[0]: true}}
	n := NewNormalizer(SegmentCharLimit, fixedRand{v: 0}, hist)
	got := n.Normalize([]string{"plain intro text?", "more?"}, true)
	if strings.HasPrefix(got[0], neutralHooks[0]) {
		t.Fatalf("недавний хук не должен повторяться: %q", got[0])
	}
	if !strings.HasPrefix(got[0], neutralHooks[1]) {
		t.Fatalf("ожидали следующий хук семейства, получили %q", got[0])
	}
}

type memHistory struct {
	recent map[string]bool
}

func (m *memHistory) WasRecent(hook string) bool { return m.recent[hook] }
func (m *memHistory) Remember(hook string)       { m.recent[hook] = true }
