package posting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"x-thread-poster/internal/domain"
)

type stubRecords struct {
	created  []domain.PostingRecord
	statuses []domain.PostingStatus
	saved    *domain.ThreadPostResult
}

func (s *stubRecords) CreateRecord(_ context.Context, record domain.PostingRecord) (domain.PostingRecord, error) {
	s.created = append(s.created, record)
	return record, nil
}

func (s *stubRecords) UpdateStatus(_ context.Context, _ string, status domain.PostingStatus) error {
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *stubRecords) SaveResult(_ context.Context, _ string, result domain.ThreadPostResult) error {
	s.saved = &result
	return nil
}

func (s *stubRecords) GetRecord(context.Context, string) (domain.PostingRecord, error) {
	return domain.PostingRecord{}, nil
}

func (s *stubRecords) ListRecent(context.Context, int) ([]domain.PostingRecord, error) {
	return nil, nil
}

type stubPublisher struct {
	postAllResults  []domain.SegmentResult
	continueResults []domain.SegmentResult
	postAllCalls    int
	continueCalls   int
	gotStart        int
	gotTarget       string
}

func (p *stubPublisher) PostAll(_ context.Context, segments []string) []domain.SegmentResult {
	p.postAllCalls++
	return p.postAllResults
}

func (p *stubPublisher) ContinueThread(_ context.Context, segments []string, startIndex int, replyTarget string) []domain.SegmentResult {
	p.continueCalls++
	p.gotStart = startIndex
	p.gotTarget = replyTarget
	return p.continueResults
}

type stubEmergency struct {
	id    string
	err   error
	calls int
	texts []string
}

func (e *stubEmergency) SubmitPost(_ context.Context, text string) (string, error) {
	e.calls++
	e.texts = append(e.texts, text)
	if e.err != nil {
		return "", e.err
	}
	return e.id, nil
}

func newTestService(pub threadPublisher, emergency domain.EmergencyPublisher, records *stubRecords) *Service {
	normalizer := NewNormalizer(SegmentCharLimit, fixedRand{v: 0}, nil)
	return NewService(pub, emergency, records, normalizer, zerolog.Nop())
}

func success(id string) domain.SegmentResult {
	return domain.SegmentResult{TweetID: id, Success: true}
}

func failure(index int, err error) domain.SegmentResult {
	return domain.SegmentResult{Err: &domain.SubmissionError{Index: index, Err: err}}
}

func TestPostSingleSuccess(t *testing.T) {
	records := &stubRecords{}
	pub := &stubPublisher{postAllResults: []domain.SegmentResult{success("p1")}}
	service := newTestService(pub, &stubEmergency{}, records)

	result := service.Post(context.Background(), []string{"Hello world"}, domain.ContentTags{Topic: "tech"})
	if !result.Success {
		t.Fatalf("ожидали успех: %+v", result)
	}
	if len(result.TweetIDs) != 1 || result.TweetIDs[0] != "p1" {
		t.Fatalf("ожидали [p1], получили %v", result.TweetIDs)
	}
	if result.Metadata.PostType != domain.PostFormatSingle {
		t.Fatalf("ожидали формат single, получили %s", result.Metadata.PostType)
	}
	if result.Metadata.ContentPreview != "Hello world" {
		t.Fatalf("неожиданный preview: %q", result.Metadata.ContentPreview)
	}
	wantStatuses := []domain.PostingStatus{domain.PostingStatusPosting, domain.PostingStatusCompleted}
	if len(records.statuses) != 2 || records.statuses[0] != wantStatuses[0] || records.statuses[1] != wantStatuses[1] {
		t.Fatalf("неожиданные переходы статусов: %v", records.statuses)
	}
}

func TestPostThreadSuccess(t *testing.T) {
	records := &stubRecords{}
	pub := &stubPublisher{postAllResults: []domain.SegmentResult{success("p1"), success("p2"), success("p3")}}
	service := newTestService(pub, &stubEmergency{}, records)

	result := service.Post(context.Background(), []string{"раз?", "два", "три?"}, domain.ContentTags{})
	if !result.Success {
		t.Fatalf("ожидали успех: %+v", result)
	}
	if len(result.TweetIDs) != 3 {
		t.Fatalf("ожидали 3 id, получили %v", result.TweetIDs)
	}
	if result.Metadata.SegmentCount != 3 || result.Metadata.PostType != domain.PostFormatThread {
		t.Fatalf("неожиданные метаданные: %+v", result.Metadata)
	}
}

func TestPostPartialFailure(t *testing.T) {
	records := &stubRecords{}
	pub := &stubPublisher{postAllResults: []domain.SegmentResult{
		success("p1"),
		failure(1, errors.New("элемент не найден")),
	}}
	service := newTestService(pub, &stubEmergency{}, records)

	result := service.Post(context.Background(), []string{"раз?", "два", "три?"}, domain.ContentTags{})
	if result.Success {
		t.Fatalf("частичный успех не является полным: %+v", result)
	}
	if len(result.TweetIDs) != 1 || result.TweetIDs[0] != "p1" {
		t.Fatalf("ожидали только [p1], получили %v", result.TweetIDs)
	}
	if result.Error == "" {
		t.Fatalf("ошибка должна быть заполнена")
	}
	if records.statuses[len(records.statuses)-1] != domain.PostingStatusFailed {
		t.Fatalf("запись должна быть failed: %v", records.statuses)
	}
}

func TestPostEscalationSingle(t *testing.T) {
	records := &stubRecords{}
	pub := &stubPublisher{postAllResults: []domain.SegmentResult{
		failure(0, domain.ErrPathExhausted),
	}}
	emergency := &stubEmergency{id: "e1"}
	service := newTestService(pub, emergency, records)

	result := service.Post(context.Background(), []string{"Hello world"}, domain.ContentTags{})
	if !result.Success {
		t.Fatalf("ожидали успех через аварийный путь: %+v", result)
	}
	if len(result.TweetIDs) != 1 || result.TweetIDs[0] != "e1" {
		t.Fatalf("ожидали [e1], получили %v", result.TweetIDs)
	}
	if emergency.calls != 1 {
		t.Fatalf("аварийный путь должен быть вызван ровно один раз")
	}
	if pub.continueCalls != 0 {
		t.Fatalf("для одиночного поста продолжение треда не нужно")
	}
}

func TestPostEscalationResumesThread(t *testing.T) {
	records := &stubRecords{}
	pub := &stubPublisher{
		postAllResults:  []domain.SegmentResult{failure(0, fmt.Errorf("запуск chrome: %w", domain.ErrPathExhausted))},
		continueResults: []domain.SegmentResult{success("p2"), success("p3")},
	}
	emergency := &stubEmergency{id: "e1"}
	service := newTestService(pub, emergency, records)

	result := service.Post(context.Background(), []string{"раз?", "два", "три?"}, domain.ContentTags{})
	if !result.Success {
		t.Fatalf("ожидали успех: %+v", result)
	}
	want := []string{"e1", "p2", "p3"}
	if len(result.TweetIDs) != len(want) {
		t.Fatalf("ожидали %v, получили %v", want, result.TweetIDs)
	}
	for i := range want {
		if result.TweetIDs[i] != want[i] {
			t.Fatalf("ожидали %v, получили %v", want, result.TweetIDs)
		}
	}
	if pub.continueCalls != 1 || pub.gotStart != 1 || pub.gotTarget != "e1" {
		t.Fatalf("продолжение треда должно стартовать с сегмента 1 от e1: start=%d target=%q", pub.gotStart, pub.gotTarget)
	}
}

func TestPostEscalationExhausted(t *testing.T) {
	records := &stubRecords{}
	pub := &stubPublisher{postAllResults: []domain.SegmentResult{failure(0, domain.ErrPathExhausted)}}
	emergency := &stubEmergency{err: errors.New("и здесь не вышло")}
	service := newTestService(pub, emergency, records)

	result := service.Post(context.Background(), []string{"Hello world"}, domain.ContentTags{})
	if result.Success || len(result.TweetIDs) != 0 {
		t.Fatalf("ожидали полный провал без опубликованных сегментов: %+v", result)
	}
	if !strings.Contains(result.Error, domain.ErrEscalationExhausted.Error()) {
		t.Fatalf("ошибка должна указывать на исчерпание эскалации: %q", result.Error)
	}
}

func TestPostNoEscalationForOrdinaryFailure(t *testing.T) {
	records := &stubRecords{}
	pub := &stubPublisher{postAllResults: []domain.SegmentResult{failure(0, errors.New("таймаут сабмита"))}}
	emergency := &stubEmergency{id: "e1"}
	service := newTestService(pub, emergency, records)

	result := service.Post(context.Background(), []string{"Hello world"}, domain.ContentTags{})
	if result.Success {
		t.Fatalf("ожидали провал: %+v", result)
	}
	if emergency.calls != 0 {
		t.Fatalf("аварийный путь разрешён только для класса исчерпанного пути")
	}
}

func TestPostNoEscalationForLaterSegments(t *testing.T) {
	records := &stubRecords{}
	pub := &stubPublisher{postAllResults: []domain.SegmentResult{
		success("p1"),
		failure(1, fmt.Errorf("%w: интерфейс пропал", domain.ErrPathExhausted)),
	}}
	emergency := &stubEmergency{id: "e1"}
	service := newTestService(pub, emergency, records)

	result := service.Post(context.Background(), []string{"раз?", "два"}, domain.ContentTags{})
	if emergency.calls != 0 {
		t.Fatalf("аварийный путь не применяется к сегментам после первого")
	}
	if len(result.TweetIDs) != 1 {
		t.Fatalf("ожидали частичный успех [p1], получили %v", result.TweetIDs)
	}
}

func TestPostValidationGate(t *testing.T) {
	records := &stubRecords{}
	pub := &stubPublisher{}
	emergency := &stubEmergency{}
	service := newTestService(pub, emergency, records)

	result := service.Post(context.Background(), nil, domain.ContentTags{})
	if result.Success || len(result.TweetIDs) != 0 {
		t.Fatalf("невалидный payload не публикуется: %+v", result)
	}
	if result.Error == "" {
		t.Fatalf("ошибка валидации должна попасть в результат")
	}
	if pub.postAllCalls != 0 || pub.continueCalls != 0 || emergency.calls != 0 {
		t.Fatalf("автоматизация не должна вызываться при невалидном payload")
	}
	if records.statuses[len(records.statuses)-1] != domain.PostingStatusFailed {
		t.Fatalf("запись должна быть failed: %v", records.statuses)
	}
}
