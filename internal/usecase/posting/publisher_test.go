package posting

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"x-thread-poster/internal/domain"
)

type submission struct {
	text   string
	parent string
}

type fakeSession struct {
	submissions []submission
	failAt      int
	failErr     error
	nextID      int
	closed      bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{failAt: -1}
}

func (s *fakeSession) SubmitPost(ctx context.Context, text string) (string, error) {
	return s.record(text, "")
}

func (s *fakeSession) SubmitReply(ctx context.Context, text, parentID string) (string, error) {
	return s.record(text, parentID)
}

func (s *fakeSession) record(text, parent string) (string, error) {
	idx := len(s.submissions)
	s.submissions = append(s.submissions, submission{text: text, parent: parent})
	if s.failAt >= 0 && idx == s.failAt {
		if s.failErr != nil {
			return "", s.failErr
		}
		return "", errors.New("платформа отклонила пост")
	}
	s.nextID++
	return fmt.Sprintf("p%d", s.nextID), nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeProvider struct {
	session  *fakeSession
	err      error
	acquires int
}

func (p *fakeProvider) Acquire(ctx context.Context) (domain.BrowserSession, error) {
	p.acquires++
	if p.err != nil {
		return nil, p.err
	}
	return p.session, nil
}

func newTestPublisher(provider domain.SessionProvider) (*Publisher, *int) {
	pub := NewPublisher(provider, 5*time.Second, 30*time.Second, zerolog.Nop())
	sleeps := 0
	pub.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps++
		return nil
	}
	return pub, &sleeps
}

func TestPostAllChainsReplies(t *testing.T) {
	session := newFakeSession()
	provider := &fakeProvider{session: session}
	pub, sleeps := newTestPublisher(provider)

	results := pub.PostAll(context.Background(), []string{"один", "два", "три"})
	if len(results) != 3 {
		t.Fatalf("ожидали 3 результата, получили %d", len(results))
	}
	for i, res := range results {
		if !res.Success {
			t.Fatalf("сегмент %d должен быть успешным: %v", i, res.Err)
		}
	}

	// Каждый следующий сегмент отвечает на id предыдущего, не на корень.
	if session.submissions[1].parent != results[0].TweetID {
		t.Fatalf("сегмент 1 должен отвечать на %q, отвечает на %q", results[0].TweetID, session.submissions[1].parent)
	}
	if session.submissions[2].parent != results[1].TweetID {
		t.Fatalf("сегмент 2 должен отвечать на %q, отвечает на %q", results[1].TweetID, session.submissions[2].parent)
	}

	if *sleeps != 2 {
		t.Fatalf("ожидали 2 паузы между постами, получили %d", *sleeps)
	}
	if !session.closed {
		t.Fatalf("сессия должна быть закрыта")
	}
}

func TestPostAllStopsOnFailure(t *testing.T) {
	session := newFakeSession()
	session.failAt = 1
	provider := &fakeProvider{session: session}
	pub, _ := newTestPublisher(provider)

	results := pub.PostAll(context.Background(), []string{"один", "два", "три"})
	if len(results) != 2 {
		t.Fatalf("ожидали 2 результата (успех + сбой), получили %d", len(results))
	}
	if !results[0].Success || results[1].Success {
		t.Fatalf("ожидали успех на 0 и сбой на 1")
	}
	var subErr *domain.SubmissionError
	if !errors.As(results[1].Err, &subErr) || subErr.Index != 1 {
		t.Fatalf("ожидали SubmissionError с индексом 1, получили %v", results[1].Err)
	}
	if len(session.submissions) != 2 {
		t.Fatalf("после сбоя сегменты не отправляются, было %d сабмитов", len(session.submissions))
	}
}

func TestPostAllAcquireFailure(t *testing.T) {
	provider := &fakeProvider{err: fmt.Errorf("%w: chrome не поднялся", domain.ErrPathExhausted)}
	pub, _ := newTestPublisher(provider)

	results := pub.PostAll(context.Background(), []string{"один", "два"})
	if len(results) != 1 || results[0].Success {
		t.Fatalf("ожидали один неуспешный результат, получили %v", results)
	}
	if !domain.IsPathExhausted(results[0].Err) {
		t.Fatalf("ошибка должна сохранять класс исчерпанного пути: %v", results[0].Err)
	}
	var subErr *domain.SubmissionError
	if !errors.As(results[0].Err, &subErr) || subErr.Index != 0 {
		t.Fatalf("ожидали SubmissionError с индексом 0, получили %v", results[0].Err)
	}
}

func TestContinueThreadKeepsChain(t *testing.T) {
	session := newFakeSession()
	provider := &fakeProvider{session: session}
	pub, _ := newTestPublisher(provider)

	results := pub.ContinueThread(context.Background(), []string{"корень", "два", "три"}, 1, "e1")
	if len(results) != 2 {
		t.Fatalf("ожидали 2 результата, получили %d", len(results))
	}
	if session.submissions[0].parent != "e1" {
		t.Fatalf("первый ответ должен цепляться к e1, получили %q", session.submissions[0].parent)
	}
	if session.submissions[1].parent != results[0].TweetID {
		t.Fatalf("второй ответ должен цепляться к %q", results[0].TweetID)
	}
}

func TestContinueThreadNoReplyTarget(t *testing.T) {
	session := newFakeSession()
	provider := &fakeProvider{session: session}
	pub, _ := newTestPublisher(provider)

	results := pub.ContinueThread(context.Background(), []string{"корень", "два"}, 1, "")
	if len(results) != 1 || results[0].Success {
		t.Fatalf("ожидали немедленный сбой, получили %v", results)
	}
	if !errors.Is(results[0].Err, domain.ErrNoReplyTarget) {
		t.Fatalf("ожидали ErrNoReplyTarget, получили %v", results[0].Err)
	}
	if len(session.submissions) != 0 {
		t.Fatalf("без цели ответа сабмитов быть не должно")
	}
}
