package domain

import (
	"errors"
	"fmt"
)

// ErrPathExhausted сигнализирует, что основной путь автоматизации исчерпан
// (браузер не поднялся, форма не найдена, платформа отклонила сабмит).
// Только эта ошибка на первом сегменте разрешает эскалацию к аварийному пути.
var ErrPathExhausted = errors.New("путь автоматизации исчерпан")

// ErrEscalationExhausted возвращается когда и основной, и аварийный путь
// не смогли опубликовать первый сегмент.
var ErrEscalationExhausted = errors.New("аварийный путь публикации тоже не сработал")

// ErrNoReplyTarget — нарушение инварианта: не первый сегмент без цели для ответа.
// Обрабатывается как ошибка сабмита на текущем индексе, а не как паника.
var ErrNoReplyTarget = errors.New("нет tweet id предыдущего сегмента для ответа")

// ValidationError описывает структурно невалидный payload. Такой payload
// никогда не доходит до браузера.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "валидация контента: " + e.Reason
}

// SubmissionError привязывает ошибку автоматизации к индексу сегмента.
type SubmissionError struct {
	Index int
	Err   error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("сегмент %d: %v", e.Index, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// IsPathExhausted проверяет, относится ли ошибка к классу исчерпанного пути
// автоматизации, в том числе завернутая в SubmissionError.
func IsPathExhausted(err error) bool {
	return errors.Is(err, ErrPathExhausted)
}
