package portrait

import (
	"fmt"
	"time"

	"aura-portrait-server/modules/common/model"
)

// 품질 모드
const (
	QualityStandard = "standard"
	QualityHigh     = "high"
)

// 조명 스타일
const (
	LightingSoft      = "soft"
	LightingCinematic = "cinematic"
	LightingDramatic  = "dramatic"
	LightingIntense   = "intense"
)

// 컬러 그레이딩
const (
	GradingNone        = "none"
	GradingWarmVintage = "warm_vintage"
	GradingCoolNoir    = "cool_noir"
	GradingTealOrange  = "teal_orange"
	GradingClassicBW   = "classic_bw"
)

// 배경 종류
const (
	BackgroundPreset      = "preset"
	BackgroundCustomColor = "custom_color"

	// 기본 프리셋은 프롬프트에 아무것도 추가하지 않음
	DefaultBackgroundPreset = "default"
)

// 지원하는 aspect-ratio 목록
var ValidAspectRatios = map[string]bool{
	"1:1":  true,
	"3:4":  true,
	"4:3":  true,
	"9:16": true,
	"16:9": true,
}

// BackgroundSetting - 배경 설정 (프리셋 또는 단색)
type BackgroundSetting struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// GenerationSettings - 한 번의 생성 요청에 대한 전체 스타일 설정
type GenerationSettings struct {
	Prompt          string            `json:"prompt"`
	AspectRatio     string            `json:"aspectRatio"`
	Quality         string            `json:"quality"`
	SkinTexture     bool              `json:"skinTexture"`
	FaceDetailLevel int               `json:"faceDetailLevel"`
	Lighting        string            `json:"lighting"`
	ColorGrading    string            `json:"colorGrading"`
	Background      BackgroundSetting `json:"background"`
}

// Normalize - 비어 있는 필드를 기본값으로 채움
func (s *GenerationSettings) Normalize() {
	if s.AspectRatio == "" {
		s.AspectRatio = "3:4"
	}
	if s.Quality == "" {
		s.Quality = QualityStandard
	}
	if s.Lighting == "" {
		s.Lighting = LightingSoft
	}
	if s.ColorGrading == "" {
		s.ColorGrading = GradingNone
	}
	if s.Background.Kind == "" {
		s.Background = BackgroundSetting{Kind: BackgroundPreset, Value: DefaultBackgroundPreset}
	}
}

// Validate - 설정값 검증 (faceDetailLevel 범위, enum, 프리셋 존재 여부)
func (s *GenerationSettings) Validate() error {
	if s.FaceDetailLevel < 0 || s.FaceDetailLevel > 100 {
		return fmt.Errorf("faceDetailLevel must be between 0 and 100, got %d", s.FaceDetailLevel)
	}
	if !ValidAspectRatios[s.AspectRatio] {
		return fmt.Errorf("unsupported aspect ratio: %s", s.AspectRatio)
	}
	switch s.Quality {
	case QualityStandard, QualityHigh:
	default:
		return fmt.Errorf("unknown quality mode: %s", s.Quality)
	}
	if _, ok := lightingPhrases[s.Lighting]; !ok {
		return fmt.Errorf("unknown lighting style: %s", s.Lighting)
	}
	if s.ColorGrading != GradingNone {
		if _, ok := gradingPhrases[s.ColorGrading]; !ok {
			return fmt.Errorf("unknown color grading: %s", s.ColorGrading)
		}
	}
	switch s.Background.Kind {
	case BackgroundPreset:
		if _, ok := backgroundPresets[s.Background.Value]; !ok {
			return fmt.Errorf("unknown background preset: %s", s.Background.Value)
		}
	case BackgroundCustomColor:
		if s.Background.Value == "" {
			return fmt.Errorf("custom_color background requires a color value")
		}
	default:
		return fmt.Errorf("unknown background kind: %s", s.Background.Kind)
	}
	return nil
}

// Snapshot - 히스토리에 저장할 설정 스냅샷 (JSONB)
func (s GenerationSettings) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"quality":         s.Quality,
		"skinTexture":     s.SkinTexture,
		"faceDetailLevel": s.FaceDetailLevel,
		"lighting":        s.Lighting,
		"colorGrading":    s.ColorGrading,
		"background":      map[string]interface{}{"kind": s.Background.Kind, "value": s.Background.Value},
	}
}

// ChatMessage - 채팅 편집 트랜스크립트 엔트리 (append-only)
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"` // user | model
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// BatchItem - 인터랙티브 배치 큐의 개별 항목
type BatchItem struct {
	ID          string `json:"id"`
	SourceImage []byte `json:"-"`
	Status      string `json:"status"`
	ResultImage []byte `json:"-"`
	Error       string `json:"error,omitempty"`
}

// GenerationOutcome - 생성 결과. Saved는 히스토리 영속화 성공 여부
// (영속화 실패는 로그만 남기고 인메모리 결과는 그대로 유지)
type GenerationOutcome struct {
	Image []byte
	Item  model.HistoryItem
	Saved bool
}
