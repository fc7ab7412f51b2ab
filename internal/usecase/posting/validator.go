package posting

import (
	"fmt"
	"strings"

	"x-thread-poster/internal/domain"
)

const (
	// SegmentCharLimit — лимит платформы на длину одного поста.
	SegmentCharLimit = 280
	// MaxThreadLength — потолок платформы на число постов в треде.
	MaxThreadLength = 25
)

// Validate проверяет структуру payload до любого обращения к браузеру.
// Возвращает индексы сегментов, которые превышают лимит и будут усечены
// нормализатором (сигнал для логирования, не ошибка). Чистая функция.
func Validate(segments []string) ([]int, error) {
	if len(segments) == 0 {
		return nil, &domain.ValidationError{Reason: "пустой payload"}
	}
	if len(segments) > MaxThreadLength {
		return nil, &domain.ValidationError{Reason: fmt.Sprintf("тред из %d сегментов превышает потолок %d", len(segments), MaxThreadLength)}
	}

	var oversized []int
	for i, segment := range segments {
		if strings.TrimSpace(segment) == "" {
			return nil, &domain.ValidationError{Reason: fmt.Sprintf("сегмент %d пустой", i)}
		}
		if len([]rune(segment)) > SegmentCharLimit {
			oversized = append(oversized, i)
		}
	}
	return oversized, nil
}
