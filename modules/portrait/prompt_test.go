package portrait

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposePrompt_FixedOrder(t *testing.T) {
	settings := GenerationSettings{
		Prompt:          "portrait of a young woman",
		AspectRatio:     "3:4",
		Quality:         QualityHigh,
		SkinTexture:     true,
		FaceDetailLevel: 80,
		Lighting:        LightingDramatic,
		ColorGrading:    GradingTealOrange,
		Background:      BackgroundSetting{Kind: BackgroundPreset, Value: DefaultBackgroundPreset},
	}

	result := ComposePrompt(settings)

	// 구절 순서 검증: 기본 → 피부 → 디테일 → 조명 → 그레이딩 → 품질
	expected := []string{
		"portrait of a young woman",
		skinTexturePhrase,
		"extremely detailed facial features, sharp focus on eyes",
		lightingPhrases[LightingDramatic],
		gradingPhrases[GradingTealOrange],
		qualityPhrases[QualityHigh],
	}

	lastIndex := -1
	for _, phrase := range expected {
		index := strings.Index(result, phrase)
		require.GreaterOrEqual(t, index, 0, "missing phrase: %s", phrase)
		assert.Greater(t, index, lastIndex, "phrase out of order: %s", phrase)
		lastIndex = index
	}

	// 기본 프리셋 배경은 구절 없음
	for _, bg := range backgroundPresets {
		if bg != "" {
			assert.NotContains(t, result, bg)
		}
	}
}

func TestComposePrompt_Deterministic(t *testing.T) {
	settings := defaultSettings()
	settings.FaceDetailLevel = 60
	settings.ColorGrading = GradingCoolNoir

	first := ComposePrompt(settings)
	second := ComposePrompt(settings)

	assert.Equal(t, first, second)
}

func TestComposePrompt_GradingNone(t *testing.T) {
	settings := defaultSettings()
	settings.ColorGrading = GradingNone

	result := ComposePrompt(settings)

	for _, phrase := range gradingPhrases {
		assert.NotContains(t, result, phrase)
	}
}

func TestComposePrompt_SingleGradingPhrase(t *testing.T) {
	for grading := range gradingPhrases {
		settings := defaultSettings()
		settings.ColorGrading = grading

		result := ComposePrompt(settings)

		count := 0
		for _, phrase := range gradingPhrases {
			if strings.Contains(result, phrase) {
				count++
			}
		}
		assert.Equal(t, 1, count, "exactly one grading phrase expected for %s", grading)
	}
}

func TestDetailBandPhrase(t *testing.T) {
	tests := []struct {
		name  string
		level int
		want  string
	}{
		{"highest band above 75", 80, "extremely detailed facial features, sharp focus on eyes"},
		{"boundary 76 is highest", 76, "extremely detailed facial features, sharp focus on eyes"},
		{"moderate band above 50", 60, "moderately detailed facial features"},
		{"boundary 75 is moderate", 75, "moderately detailed facial features"},
		{"soft focus below 25", 10, "soft-focus facial rendering"},
		{"boundary 24 is soft focus", 24, "soft-focus facial rendering"},
		{"neutral zone 25", 25, ""},
		{"neutral zone 50", 50, ""},
		{"neutral zone 40", 40, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detailBandPhrase(tt.level))
		})
	}
}

func TestComposePrompt_DetailBandsExclusive(t *testing.T) {
	bands := []string{
		"extremely detailed facial features, sharp focus on eyes",
		"moderately detailed facial features",
		"soft-focus facial rendering",
	}

	for level := 0; level <= 100; level += 5 {
		settings := defaultSettings()
		settings.FaceDetailLevel = level

		result := ComposePrompt(settings)

		count := 0
		for _, band := range bands {
			if strings.Contains(result, band) {
				count++
			}
		}
		assert.LessOrEqual(t, count, 1, "at most one detail band at level %d", level)
	}
}

func TestComposePrompt_CustomColorBackground(t *testing.T) {
	settings := defaultSettings()
	settings.Background = BackgroundSetting{Kind: BackgroundCustomColor, Value: "emerald green"}

	result := ComposePrompt(settings)

	assert.Contains(t, result, "solid emerald green background")
}

func TestComposePrompt_PresetBackground(t *testing.T) {
	settings := defaultSettings()
	settings.Background = BackgroundSetting{Kind: BackgroundPreset, Value: "studio_grey"}

	result := ComposePrompt(settings)

	assert.Contains(t, result, backgroundPresets["studio_grey"])
	// 배경 구절은 항상 마지막
	assert.True(t, strings.HasSuffix(result, backgroundPresets["studio_grey"]))
}

func TestComposePrompt_EmptyBasePrompt(t *testing.T) {
	settings := defaultSettings()
	settings.Prompt = "   "

	result := ComposePrompt(settings)

	assert.False(t, strings.HasPrefix(result, ", "))
	assert.NotContains(t, result, ", ,")
}

func TestComposeChatEdit_AbbreviatedPrompt(t *testing.T) {
	settings := defaultSettings()
	settings.Quality = QualityHigh
	settings.Lighting = LightingCinematic
	settings.SkinTexture = true
	settings.FaceDetailLevel = 90
	settings.ColorGrading = GradingWarmVintage

	result := ComposeChatEdit("make the smile wider", settings)

	// 지시문 + 품질 + 조명만 포함
	assert.Contains(t, result, "make the smile wider")
	assert.Contains(t, result, qualityPhrases[QualityHigh])
	assert.Contains(t, result, lightingPhrases[LightingCinematic])

	// 나머지 설정 구절은 제외
	assert.NotContains(t, result, skinTexturePhrase)
	assert.NotContains(t, result, "extremely detailed facial features")
	assert.NotContains(t, result, gradingPhrases[GradingWarmVintage])
}

func TestComposeChatEdit_InstructionFirst(t *testing.T) {
	settings := defaultSettings()

	result := ComposeChatEdit("add glasses", settings)

	assert.True(t, strings.HasPrefix(result, "add glasses"))
}

func TestValidate(t *testing.T) {
	t.Run("valid defaults pass", func(t *testing.T) {
		settings := defaultSettings()
		assert.NoError(t, settings.Validate())
	})

	t.Run("detail level out of range", func(t *testing.T) {
		settings := defaultSettings()
		settings.FaceDetailLevel = 101
		assert.Error(t, settings.Validate())

		settings.FaceDetailLevel = -1
		assert.Error(t, settings.Validate())
	})

	t.Run("unknown aspect ratio", func(t *testing.T) {
		settings := defaultSettings()
		settings.AspectRatio = "2:1"
		assert.Error(t, settings.Validate())
	})

	t.Run("unknown lighting", func(t *testing.T) {
		settings := defaultSettings()
		settings.Lighting = "neon"
		assert.Error(t, settings.Validate())
	})

	t.Run("unknown preset", func(t *testing.T) {
		settings := defaultSettings()
		settings.Background = BackgroundSetting{Kind: BackgroundPreset, Value: "moon"}
		assert.Error(t, settings.Validate())
	})

	t.Run("custom color requires value", func(t *testing.T) {
		settings := defaultSettings()
		settings.Background = BackgroundSetting{Kind: BackgroundCustomColor, Value: ""}
		assert.Error(t, settings.Validate())
	})
}
