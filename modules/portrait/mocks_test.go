package portrait

import (
	"context"
	"fmt"
	"sync"
	"time"

	"aura-portrait-server/modules/common/model"
)

// fakeGenerator - 호출 기록과 결과를 스크립트할 수 있는 Generator
type fakeGenerator struct {
	mu      sync.Mutex
	calls   []string // 받은 프롬프트 기록
	results [][]byte
	errs    []error
	index   int

	// 동시 실행 감지용
	active    int
	maxActive int

	delay time.Duration
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string, sourceImage []byte, aspectRatio string) ([]byte, error) {
	f.mu.Lock()
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	f.calls = append(f.calls, prompt)
	i := f.index
	f.index++
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.active--
	f.mu.Unlock()

	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.results) {
		return f.results[i], nil
	}
	return []byte("generated-image"), nil
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// panicGenerator - 생성 도중 패닉을 일으키는 Generator
type panicGenerator struct{}

func (panicGenerator) Generate(ctx context.Context, prompt string, sourceImage []byte, aspectRatio string) ([]byte, error) {
	panic("generator blew up")
}

// fakeAnimator - 스크립트 가능한 Animator
type fakeAnimator struct {
	video []byte
	err   error
	calls int
}

func (f *fakeAnimator) Animate(ctx context.Context, image []byte) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.video, nil
}

// fakeHistoryStore - 인메모리 HistoryStore
type fakeHistoryStore struct {
	mu      sync.Mutex
	items   []model.HistoryItem
	saveErr error
	listErr error
	listed  int
}

func (f *fakeHistoryStore) SaveHistory(ctx context.Context, item model.HistoryItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.items = append(f.items, item)
	return nil
}

func (f *fakeHistoryStore) ListHistory(ctx context.Context, sessionID string) ([]model.HistoryItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listed++
	if f.listErr != nil {
		return nil, f.listErr
	}
	result := make([]model.HistoryItem, 0, len(f.items))
	for _, item := range f.items {
		if item.SessionID == sessionID {
			result = append(result, item)
		}
	}
	return result, nil
}

func (f *fakeHistoryStore) DeleteHistory(ctx context.Context, historyID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, item := range f.items {
		if item.HistoryID == historyID {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("history item not found: %s", historyID)
}

func (f *fakeHistoryStore) ClearHistory(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	filtered := f.items[:0]
	for _, item := range f.items {
		if item.SessionID != sessionID {
			filtered = append(filtered, item)
		}
	}
	f.items = filtered
	return nil
}

func (f *fakeHistoryStore) savedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

// fakeStorage - 인메모리 ResultStorage
type fakeStorage struct {
	mu        sync.Mutex
	uploads   int
	uploadErr error
}

func (f *fakeStorage) UploadResultImage(ctx context.Context, imageData []byte, sessionID string) (string, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", 0, f.uploadErr
	}
	f.uploads++
	return fmt.Sprintf("portraits/session-%s/result_%d.webp", sessionID, f.uploads), int64(len(imageData)), nil
}

// newTestSession - 테스트용 세션 구성
func newTestSession(gen *fakeGenerator, anim *fakeAnimator, hist *fakeHistoryStore, store *fakeStorage) *Session {
	return NewSession("test-session", Deps{
		Generator: gen,
		Animator:  anim,
		History:   hist,
		Storage:   store,
	})
}

// defaultSettings - 검증을 통과하는 기본 설정
func defaultSettings() GenerationSettings {
	settings := GenerationSettings{Prompt: "portrait of a person"}
	settings.Normalize()
	return settings
}
