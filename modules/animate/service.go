package animate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"aura-portrait-server/modules/common/utils"
)

// Fixed motion profile for portrait loops
const (
	loopDuration = 4
	loopFPS      = 24
	motionPrompt = "subtle natural motion, gentle breathing, soft hair movement, seamless loop"
)

type Service struct {
	config *Config
	client *http.Client
}

func NewService() *Service {
	return &Service{
		config: LoadConfig(),
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// Animate converts a still portrait into a short looping video clip
func (s *Service) Animate(ctx context.Context, image []byte) ([]byte, error) {
	log.Printf("🎬 [Animate] Requesting video generation (%d bytes source)", len(image))

	animReq := AnimationRequest{
		Image:    utils.ConvertImageToBase64(image),
		Prompt:   motionPrompt,
		Duration: loopDuration,
		FPS:      loopFPS,
		Loop:     true,
	}

	reqBody, err := json.Marshal(animReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.config.VideoAPIEndpoint, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.VideoAPIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call video API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("video API error (status %d): %s", resp.StatusCode, string(body))
	}

	var animResp AnimationResponse
	if err := json.NewDecoder(resp.Body).Decode(&animResp); err != nil {
		return nil, fmt.Errorf("failed to parse video API response: %w", err)
	}

	// Inline base64 response
	if animResp.Video != "" {
		videoData, err := utils.DecodeBase64Image(animResp.Video)
		if err != nil {
			return nil, fmt.Errorf("failed to decode video data: %w", err)
		}
		log.Printf("✅ [Animate] Video received inline: %d bytes", len(videoData))
		return videoData, nil
	}

	// URL response, download the clip
	if animResp.VideoURL != "" {
		return s.downloadVideo(ctx, animResp.VideoURL)
	}

	return nil, fmt.Errorf("video API returned no video (status: %s, message: %s)", animResp.Status, animResp.Message)
}

// downloadVideo fetches the generated clip from the returned URL
func (s *Service) downloadVideo(ctx context.Context, url string) ([]byte, error) {
	log.Printf("📥 [Animate] Downloading video from: %s", url)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download video: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("video download failed with status %d", resp.StatusCode)
	}

	videoData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read video data: %w", err)
	}

	log.Printf("✅ [Animate] Video downloaded: %d bytes", len(videoData))
	return videoData, nil
}
