package portrait

import (
	"context"
	"fmt"
	"log"

	"google.golang.org/genai"

	"aura-portrait-server/modules/common/config"
	"aura-portrait-server/modules/common/gemini"
	"aura-portrait-server/modules/common/utils"
)

// GeminiGenerator - Gemini 기반 Generator 구현체
type GeminiGenerator struct {
	apiKeys []string
	model   string
}

// NewGeminiGenerator - 설정에서 API 키 목록을 읽어 생성
func NewGeminiGenerator() *GeminiGenerator {
	cfg := config.GetConfig()
	return &GeminiGenerator{
		apiKeys: cfg.GeminiAPIKeys,
		model:   cfg.GeminiModel,
	}
}

// Generate - 원본 이미지 + 조합된 프롬프트로 인물 사진 생성
// 원본은 aspect-ratio 캔버스로 정규화 후 전달
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string, sourceImage []byte, aspectRatio string) ([]byte, error) {
	log.Printf("🎨 [Portrait] Generating image (aspect: %s, prompt: %d chars)", aspectRatio, len(prompt))

	normalized, err := utils.NormalizeToAspect(sourceImage, aspectRatio)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize source image: %w", err)
	}

	parts := []*genai.Part{
		{Text: prompt},
		{InlineData: &genai.Blob{
			MIMEType: "image/png",
			Data:     normalized,
		}},
	}

	contents := []*genai.Content{{Parts: parts, Role: "user"}}

	genConfig := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE"},
		ImageConfig: &genai.ImageConfig{
			AspectRatio: aspectRatio,
		},
	}

	result, err := gemini.GenerateContentWithRetry(ctx, g.apiKeys, g.model, contents, genConfig)
	if err != nil {
		return nil, fmt.Errorf("gemini generation failed: %w", err)
	}

	imageData, err := extractImageData(result)
	if err != nil {
		return nil, err
	}

	log.Printf("✅ [Portrait] Image generated: %d bytes", len(imageData))
	return imageData, nil
}

// extractImageData - 응답에서 inline 이미지 데이터 추출
func extractImageData(result *genai.GenerateContentResponse) ([]byte, error) {
	if result == nil || len(result.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates in response")
	}

	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data, nil
			}
		}
	}

	return nil, fmt.Errorf("no image data in response")
}
