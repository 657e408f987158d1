package portrait

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"aura-portrait-server/modules/common/model"
)

// ErrBusy - 이미 생성 작업이 진행 중일 때 반환
var ErrBusy = fmt.Errorf("another generation is already in progress")

// StatusEvent - WebSocket으로 브로드캐스트되는 세션 상태 이벤트
type StatusEvent struct {
	SessionID string `json:"sessionId"`
	Type      string `json:"type"` // status | batch_item | chat
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
}

// Deps - 세션 컨트롤러 의존성 묶음
type Deps struct {
	Generator Generator
	Animator  Animator
	History   HistoryStore
	Storage   ResultStorage
	Notify    func(event StatusEvent)

	// 배치 아이템 처리 속도 (0이면 무제한)
	BatchRate rate.Limit
}

// Session - 세션 하나의 상태 컨트롤러
// 모든 상태 접근은 mu로 직렬화, 실행 슬롯은 gate(1칸)로 제한
type Session struct {
	ID string

	mu    sync.Mutex
	state State

	gate    *semaphore.Weighted
	limiter *rate.Limiter
	cache   *gocache.Cache

	deps Deps
}

// NewSession - 세션 생성
func NewSession(id string, deps Deps) *Session {
	batchRate := deps.BatchRate
	if batchRate == 0 {
		batchRate = rate.Inf
	}

	return &Session{
		ID:      id,
		state:   newState(),
		gate:    semaphore.NewWeighted(1),
		limiter: rate.NewLimiter(batchRate, 1),
		cache:   gocache.New(5*time.Minute, 10*time.Minute),
		deps:    deps,
	}
}

// notify - 상태 이벤트 전송 (콜백 미설정 시 무시)
func (s *Session) notify(event StatusEvent) {
	if s.deps.Notify != nil {
		event.SessionID = s.ID
		s.deps.Notify(event)
	}
}

// Snapshot - 현재 상태 복사본 반환
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state
	snapshot.Chat = append([]ChatMessage(nil), s.state.Chat...)
	snapshot.Batch = append([]BatchItem(nil), s.state.Batch...)
	return snapshot
}

// SetSourceImage - 새 원본 이미지 장착
// 이전 결과물과 채팅 트랜스크립트는 함께 초기화됨
func (s *Session) SetSourceImage(image []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.setSource(image)
	log.Printf("📥 [Session %s] Source image set: %d bytes", s.ID, len(image))
}

// UpdateSettings - 스타일 설정 교체 (검증 후)
func (s *Session) UpdateSettings(settings GenerationSettings) error {
	settings.Normalize()
	if err := settings.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Settings = settings
	return nil
}

// SubmitGeneration - 단일 생성 요청
// 원본 이미지가 없으면 조용히 no-op (에러 아님)
// 이미 작업 중이면 ErrBusy
func (s *Session) SubmitGeneration(ctx context.Context, settings GenerationSettings) (*GenerationOutcome, error) {
	settings.Normalize()
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.state.SourceImage == nil {
		s.mu.Unlock()
		log.Printf("⚠️  [Session %s] Generation submitted without source image, ignoring", s.ID)
		return nil, nil
	}
	source := s.state.SourceImage
	s.mu.Unlock()

	if !s.gate.TryAcquire(1) {
		return nil, ErrBusy
	}
	defer s.gate.Release(1)

	s.beginLoading(settings)
	defer s.endLoading()

	prompt := ComposePrompt(settings)
	log.Printf("🚀 [Session %s] Starting generation: %s", s.ID, prompt)

	image, err := s.deps.Generator.Generate(ctx, prompt, source, settings.AspectRatio)
	if err != nil {
		s.recordFailure(err)
		return nil, err
	}

	outcome := s.persistResult(ctx, image, prompt, settings)
	s.adoptResult(image)

	return outcome, nil
}

// SubmitChatEdit - 현재 결과물에 대한 채팅 편집
// 결과물이 없으면 조용히 no-op
// 성공/실패 모두 트랜스크립트에 기록됨
func (s *Session) SubmitChatEdit(ctx context.Context, instruction string) (*GenerationOutcome, error) {
	s.mu.Lock()
	if s.state.ResultImage == nil {
		s.mu.Unlock()
		log.Printf("⚠️  [Session %s] Chat edit submitted without result image, ignoring", s.ID)
		return nil, nil
	}
	result := s.state.ResultImage
	settings := s.state.Settings
	s.state.Chat = append(s.state.Chat, ChatMessage{
		ID:        uuid.New().String(),
		Role:      "user",
		Text:      instruction,
		Timestamp: time.Now(),
	})
	s.mu.Unlock()

	s.notify(StatusEvent{Type: "chat", Status: "user", Detail: instruction})

	if !s.gate.TryAcquire(1) {
		s.appendModelMessage("Edit rejected: another generation is in progress")
		return nil, ErrBusy
	}
	defer s.gate.Release(1)

	s.beginLoading(settings)
	defer s.endLoading()

	// 편집은 축약 프롬프트 사용 (원본 스타일은 결과물에 이미 반영)
	prompt := ComposeChatEdit(instruction, settings)
	log.Printf("💬 [Session %s] Chat edit: %s", s.ID, prompt)

	image, err := s.deps.Generator.Generate(ctx, prompt, result, settings.AspectRatio)
	if err != nil {
		s.recordFailure(err)
		s.appendModelMessage(fmt.Sprintf("Edit failed: %v", err))
		return nil, err
	}

	outcome := s.persistResult(ctx, image, prompt, settings)
	s.adoptResult(image)
	s.appendModelMessage("Edit applied")

	return outcome, nil
}

// SubmitBatch - 배치 큐 처리 (엄격히 순차, 아이템 실패해도 다음 아이템 계속)
func (s *Session) SubmitBatch(ctx context.Context, sources [][]byte, settings GenerationSettings) ([]BatchItem, error) {
	settings.Normalize()
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	if len(sources) == 0 {
		return nil, nil
	}

	if !s.gate.TryAcquire(1) {
		return nil, ErrBusy
	}
	defer s.gate.Release(1)

	items := make([]BatchItem, len(sources))
	for i, source := range sources {
		items[i] = BatchItem{
			ID:          uuid.New().String(),
			SourceImage: source,
			Status:      ItemPending,
		}
	}

	s.mu.Lock()
	s.state.Batch = items
	s.mu.Unlock()

	prompt := ComposePrompt(settings)
	log.Printf("🚀 [Session %s] Starting batch: %d items", s.ID, len(items))

	for i := range items {
		// 아이템 간 속도 제한 (429 예방)
		if err := s.limiter.Wait(ctx); err != nil {
			s.setBatchItem(i, ItemError, nil, err.Error())
			continue
		}

		s.setBatchItem(i, ItemProcessing, nil, "")

		image, err := s.deps.Generator.Generate(ctx, prompt, items[i].SourceImage, settings.AspectRatio)
		if err != nil {
			log.Printf("❌ [Session %s] Batch item %d/%d failed: %v", s.ID, i+1, len(items), err)
			s.setBatchItem(i, ItemError, nil, err.Error())
			continue
		}

		s.persistResult(ctx, image, prompt, settings)
		s.setBatchItem(i, ItemDone, image, "")
		log.Printf("✅ [Session %s] Batch item %d/%d done", s.ID, i+1, len(items))
	}

	s.mu.Lock()
	final := append([]BatchItem(nil), s.state.Batch...)
	s.mu.Unlock()

	return final, nil
}

// SubmitAnimation - 현재 결과물을 짧은 루프 영상으로 변환
// 결과물이 없으면 조용히 no-op, 실패 시 정지 이미지 뷰 유지
func (s *Session) SubmitAnimation(ctx context.Context) error {
	s.mu.Lock()
	if s.state.ResultImage == nil {
		s.mu.Unlock()
		log.Printf("⚠️  [Session %s] Animation submitted without result image, ignoring", s.ID)
		return nil
	}
	result := s.state.ResultImage
	settings := s.state.Settings
	s.mu.Unlock()

	if !s.gate.TryAcquire(1) {
		return ErrBusy
	}
	defer s.gate.Release(1)

	s.beginLoading(settings)
	defer s.endLoading()
	log.Printf("🎬 [Session %s] Starting animation", s.ID)

	video, err := s.deps.Animator.Animate(ctx, result)
	if err != nil {
		// 실패해도 정지 이미지는 그대로 유지
		s.recordFailure(err)
		return err
	}

	s.mu.Lock()
	s.state.setVideo(video)
	s.mu.Unlock()

	log.Printf("✅ [Session %s] Animation complete: %d bytes", s.ID, len(video))
	return nil
}

// History - 히스토리 조회 (go-cache read-through)
func (s *Session) History(ctx context.Context) ([]model.HistoryItem, error) {
	cacheKey := "history:" + s.ID

	if cached, found := s.cache.Get(cacheKey); found {
		return cached.([]model.HistoryItem), nil
	}

	items, err := s.deps.History.ListHistory(ctx, s.ID)
	if err != nil {
		return nil, err
	}

	s.cache.Set(cacheKey, items, gocache.DefaultExpiration)
	return items, nil
}

// DeleteHistoryItem - 히스토리 한 건 삭제 (캐시 무효화 포함)
func (s *Session) DeleteHistoryItem(ctx context.Context, historyID string) error {
	if err := s.deps.History.DeleteHistory(ctx, historyID); err != nil {
		return err
	}
	s.cache.Delete("history:" + s.ID)
	return nil
}

// ClearHistory - 히스토리 전체 삭제 (캐시 무효화 포함)
func (s *Session) ClearHistory(ctx context.Context) error {
	if err := s.deps.History.ClearHistory(ctx, s.ID); err != nil {
		return err
	}
	s.cache.Delete("history:" + s.ID)
	return nil
}

// persistResult - 생성 결과 best-effort 영속화
// 업로드/저장 실패는 로그만 남기고 인메모리 결과에는 영향 없음 (롤백 없음)
func (s *Session) persistResult(ctx context.Context, image []byte, prompt string, settings GenerationSettings) *GenerationOutcome {
	item := model.HistoryItem{
		HistoryID:   uuid.New().String(),
		SessionID:   s.ID,
		Prompt:      prompt,
		AspectRatio: settings.AspectRatio,
		Settings:    settings.Snapshot(),
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	}

	saved := true

	path, _, err := s.deps.Storage.UploadResultImage(ctx, image, s.ID)
	if err != nil {
		log.Printf("⚠️  [Session %s] Result upload failed (keeping in-memory result): %v", s.ID, err)
		saved = false
	} else {
		item.ImagePath = path
	}

	if saved {
		if err := s.deps.History.SaveHistory(ctx, item); err != nil {
			log.Printf("⚠️  [Session %s] History save failed (keeping in-memory result): %v", s.ID, err)
			saved = false
		}
	}

	if saved {
		s.cache.Delete("history:" + s.ID)
	}

	return &GenerationOutcome{Image: image, Item: item, Saved: saved}
}

// beginLoading - loading 전이 + 이벤트 브로드캐스트
func (s *Session) beginLoading(settings GenerationSettings) {
	s.mu.Lock()
	s.state.Settings = settings
	s.state.beginLoading()
	s.mu.Unlock()

	s.notify(StatusEvent{Type: "status", Status: StatusLoading})
}

// endLoading - loading 해제 + idle 이벤트 브로드캐스트
// 성공/실패/패닉과 무관하게 defer로 항상 실행되는 단일 정리 단계
func (s *Session) endLoading() {
	s.mu.Lock()
	s.state.settle()
	detail := s.state.LastError
	s.mu.Unlock()

	s.notify(StatusEvent{Type: "status", Status: StatusIdle, Detail: detail})
}

// adoptResult - 결과 이미지 장착 (전이는 endLoading이 담당)
func (s *Session) adoptResult(image []byte) {
	s.mu.Lock()
	s.state.setResult(image)
	s.mu.Unlock()
}

// recordFailure - 에러 기록 (전이는 endLoading이 담당)
func (s *Session) recordFailure(err error) {
	s.mu.Lock()
	s.state.recordError(err.Error())
	s.mu.Unlock()
}

// appendModelMessage - 모델 측 트랜스크립트 엔트리 추가
func (s *Session) appendModelMessage(text string) {
	s.mu.Lock()
	s.state.Chat = append(s.state.Chat, ChatMessage{
		ID:        uuid.New().String(),
		Role:      "model",
		Text:      text,
		Timestamp: time.Now(),
	})
	s.mu.Unlock()

	s.notify(StatusEvent{Type: "chat", Status: "model", Detail: text})
}

// setBatchItem - 배치 아이템 상태 갱신 + 이벤트 브로드캐스트
func (s *Session) setBatchItem(index int, status string, result []byte, errMsg string) {
	s.mu.Lock()
	if index >= 0 && index < len(s.state.Batch) {
		s.state.Batch[index].Status = status
		s.state.Batch[index].ResultImage = result
		s.state.Batch[index].Error = errMsg
	}
	s.mu.Unlock()

	s.notify(StatusEvent{Type: "batch_item", Status: status, Detail: errMsg})
}

// Manager - 세션 레지스트리
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	deps     Deps
}

// NewManager - 세션 매니저 생성
func NewManager(deps Deps) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		deps:     deps,
	}
}

// GetOrCreate - 세션 조회, 없으면 생성
func (m *Manager) GetOrCreate(sessionID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session, exists := m.sessions[sessionID]; exists {
		return session
	}

	session := NewSession(sessionID, m.deps)
	m.sessions[sessionID] = session
	log.Printf("🎯 New session created: %s (total: %d)", sessionID, len(m.sessions))
	return session
}

// Count - 활성 세션 수
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
