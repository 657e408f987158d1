package portrait

import (
	"context"

	"aura-portrait-server/modules/common/model"
)

// Generator - 이미지 생성 백엔드 (Gemini 구현체는 service.go)
type Generator interface {
	// Generate - 프롬프트와 원본 이미지로 새 인물 사진 생성
	Generate(ctx context.Context, prompt string, sourceImage []byte, aspectRatio string) ([]byte, error)
}

// Animator - 정지 이미지를 짧은 루프 영상으로 변환하는 백엔드
type Animator interface {
	Animate(ctx context.Context, image []byte) ([]byte, error)
}

// HistoryStore - 히스토리 영속화 (Supabase 구현체는 common/database)
type HistoryStore interface {
	SaveHistory(ctx context.Context, item model.HistoryItem) error
	ListHistory(ctx context.Context, sessionID string) ([]model.HistoryItem, error)
	DeleteHistory(ctx context.Context, historyID string) error
	ClearHistory(ctx context.Context, sessionID string) error
}

// ResultStorage - 생성 결과 업로드 (Supabase Storage 구현체는 common/storage)
type ResultStorage interface {
	UploadResultImage(ctx context.Context, imageData []byte, sessionID string) (string, int64, error)
}
