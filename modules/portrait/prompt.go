package portrait

import (
	"fmt"
	"strings"
)

// 스타일 설정 → 프롬프트 구절 테이블
// 구절이 빈 문자열이면 프롬프트에서 생략됨

var lightingPhrases = map[string]string{
	LightingSoft:      "soft diffused studio lighting",
	LightingCinematic: "cinematic lighting with gentle rim light",
	LightingDramatic:  "dramatic high-contrast lighting with deep shadows",
	LightingIntense:   "intense directional lighting with hard edges",
}

var gradingPhrases = map[string]string{
	GradingWarmVintage: "warm vintage color grading with faded film tones",
	GradingCoolNoir:    "cool noir color grading with muted blue shadows",
	GradingTealOrange:  "teal and orange cinematic color grading",
	GradingClassicBW:   "classic black and white tones with rich contrast",
}

var qualityPhrases = map[string]string{
	QualityStandard: "professional portrait photography",
	QualityHigh:     "ultra-detailed professional portrait photography, 8k resolution, masterpiece quality",
}

var backgroundPresets = map[string]string{
	DefaultBackgroundPreset: "", // 기본 프리셋은 구절 없음
	"studio_grey":           "neutral grey studio backdrop",
	"studio_white":          "clean white studio backdrop",
	"golden_hour":           "golden hour outdoor background with warm bokeh",
	"city_night":            "blurred city lights at night in the background",
	"garden":                "lush garden background with soft natural greenery",
}

const skinTexturePhrase = "natural realistic skin texture with visible pores"

// detailBandPhrase - faceDetailLevel 슬라이더를 디테일 밴드 구절로 변환
// >75: 최고 디테일 / >50: 중간 디테일 / <25: 소프트 포커스 / 나머지: 구절 없음
func detailBandPhrase(level int) string {
	switch {
	case level > 75:
		return "extremely detailed facial features, sharp focus on eyes"
	case level > 50:
		return "moderately detailed facial features"
	case level < 25:
		return "soft-focus facial rendering"
	default:
		return ""
	}
}

// backgroundPhrase - 배경 설정을 구절로 변환 (기본 프리셋은 빈 문자열)
func backgroundPhrase(bg BackgroundSetting) string {
	if bg.Kind == BackgroundCustomColor {
		return fmt.Sprintf("solid %s background", bg.Value)
	}
	return backgroundPresets[bg.Value]
}

// ComposePrompt - 설정 전체를 하나의 생성 프롬프트로 조합
// 구절 순서 고정: 기본 프롬프트 → 피부 질감 → 디테일 밴드 → 조명 → 그레이딩 → 품질 → 배경
// 같은 입력은 항상 같은 출력 (순수 함수)
func ComposePrompt(settings GenerationSettings) string {
	phrases := make([]string, 0, 7)

	if base := strings.TrimSpace(settings.Prompt); base != "" {
		phrases = append(phrases, base)
	}

	if settings.SkinTexture {
		phrases = append(phrases, skinTexturePhrase)
	}

	if band := detailBandPhrase(settings.FaceDetailLevel); band != "" {
		phrases = append(phrases, band)
	}

	if lighting := lightingPhrases[settings.Lighting]; lighting != "" {
		phrases = append(phrases, lighting)
	}

	// "none"은 그레이딩 구절 생략
	if settings.ColorGrading != GradingNone {
		if grading := gradingPhrases[settings.ColorGrading]; grading != "" {
			phrases = append(phrases, grading)
		}
	}

	if quality := qualityPhrases[settings.Quality]; quality != "" {
		phrases = append(phrases, quality)
	}

	if bg := backgroundPhrase(settings.Background); bg != "" {
		phrases = append(phrases, bg)
	}

	return strings.Join(phrases, ", ")
}

// ComposeChatEdit - 채팅 편집용 축약 프롬프트
// 편집 지시문 + 품질/조명 구절만 유지 (나머지 설정은 원본 이미지가 이미 반영)
func ComposeChatEdit(instruction string, settings GenerationSettings) string {
	phrases := make([]string, 0, 3)

	if inst := strings.TrimSpace(instruction); inst != "" {
		phrases = append(phrases, inst)
	}

	if quality := qualityPhrases[settings.Quality]; quality != "" {
		phrases = append(phrases, quality)
	}

	if lighting := lightingPhrases[settings.Lighting]; lighting != "" {
		phrases = append(phrases, lighting)
	}

	return strings.Join(phrases, ", ")
}
