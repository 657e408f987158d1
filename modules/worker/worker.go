package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"golang.org/x/time/rate"

	"aura-portrait-server/modules/common/cancel"
	"aura-portrait-server/modules/common/config"
	"aura-portrait-server/modules/common/database"
	"aura-portrait-server/modules/common/model"
	redisClient "aura-portrait-server/modules/common/redis"
	"aura-portrait-server/modules/common/storage"
	"aura-portrait-server/modules/portrait"
)

const queueKey = "batch:queue"

// StartWorker - Redis Queue Worker 시작 (배치 작업 처리)
func StartWorker() {
	log.Println("🔄 Batch Queue Worker starting...")

	cfg := config.GetConfig()

	// Redis 연결
	rdb := redisClient.Connect(cfg)
	if rdb == nil {
		log.Fatal("❌ Failed to connect to Redis")
		return
	}
	log.Println("✅ Redis connected successfully")

	// Database 클라이언트 초기화
	dbClient := database.NewClient()
	if dbClient == nil {
		log.Fatal("❌ Failed to initialize Database client")
		return
	}

	processor := &Processor{
		db:        dbClient,
		storage:   storage.NewClient(),
		generator: portrait.NewGeminiGenerator(),
		limiter:   newBatchLimiter(cfg.BatchItemsPerMinute),
		cancels:   cancel.NewRegistry(rdb),
	}

	// Queue 감시 시작
	log.Printf("👀 Watching queue: %s", queueKey)

	ctx := context.Background()

	for {
		// Job 받기 (BRPOP - Blocking Right Pop)
		result, err := rdb.BRPop(ctx, 0, queueKey).Result()
		if err != nil {
			log.Printf("❌ Redis BRPOP error: %v", err)
			time.Sleep(5 * time.Second)
			continue
		}

		// result[0]은 queue 이름, result[1]이 실제 job_id
		jobID := result[1]
		log.Printf("🎯 Received batch job: %s", jobID)

		// 배치는 아이템 순서 보장을 위해 job 단위로 동기 처리
		processor.ProcessJob(ctx, jobID)
	}
}

// newBatchLimiter - 분당 아이템 수 제한 (0이면 무제한)
func newBatchLimiter(itemsPerMinute int) *rate.Limiter {
	if itemsPerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(itemsPerMinute)), 1)
}

// Processor - 배치 작업 처리기
type Processor struct {
	db        *database.Client
	storage   *storage.Client
	generator portrait.Generator
	limiter   *rate.Limiter
	cancels   *cancel.Registry
}

// ProcessJob - 배치 작업 처리 (아이템 엄격히 순차, 실패해도 다음 아이템 계속)
func (p *Processor) ProcessJob(ctx context.Context, jobID string) {
	log.Printf("🚀 Processing batch job: %s", jobID)

	job, err := p.db.FetchBatchJob(jobID)
	if err != nil {
		log.Printf("❌ Failed to fetch batch job %s: %v", jobID, err)
		return
	}

	settings, err := parseSettings(job.Settings)
	if err != nil {
		log.Printf("❌ Invalid settings for batch job %s: %v", jobID, err)
		p.db.UpdateBatchJobStatus(ctx, jobID, model.StatusFailed)
		return
	}

	if err := p.db.UpdateBatchJobStatus(ctx, jobID, model.StatusProcessing); err != nil {
		log.Printf("⚠️  Failed to mark job processing: %v", err)
	}

	prompt := portrait.ComposePrompt(settings)
	log.Printf("📝 Batch prompt: %s", prompt)

	cancelled := false
	for i := range job.Items {
		// 아이템마다 취소 플래그 확인 (이미 생성된 결과는 유지)
		if p.cancels != nil && p.cancels.IsCancelled(ctx, jobID) {
			log.Printf("🛑 Batch job %s cancelled, stopping at item %d/%d", jobID, i+1, len(job.Items))
			cancelled = true
			break
		}
		p.processItem(ctx, job, i, prompt, settings)
	}

	finalStatus := model.StatusCompleted
	if cancelled {
		finalStatus = model.StatusCancelled
	}

	// 전체 완료 (아이템별 실패는 items에 기록됨)
	if err := p.db.UpdateBatchJobStatus(ctx, jobID, finalStatus); err != nil {
		log.Printf("⚠️  Failed to mark job %s: %v", finalStatus, err)
	}

	if p.cancels != nil {
		p.cancels.Clear(ctx, jobID)
	}

	log.Printf("✅ Batch job finished: %s (%d items, status: %s)", jobID, len(job.Items), finalStatus)
}

// processItem - 아이템 하나 처리: 원본 다운로드 → 생성 → 결과 업로드 → 히스토리 기록
func (p *Processor) processItem(ctx context.Context, job *model.BatchJob, index int, prompt string, settings portrait.GenerationSettings) {
	item := &job.Items[index]
	log.Printf("🔄 Batch item %d/%d: %s", index+1, len(job.Items), item.ItemID)

	// 아이템 간 속도 제한 (429 예방)
	if err := p.limiter.Wait(ctx); err != nil {
		p.failItem(ctx, job, index, err)
		return
	}

	item.Status = model.ItemStatusProcessing
	p.db.UpdateBatchJobItems(ctx, job.JobID, job.Items)

	sourceData, err := p.storage.DownloadImage(ctx, item.SourcePath)
	if err != nil {
		p.failItem(ctx, job, index, fmt.Errorf("source download failed: %w", err))
		return
	}

	resultImage, err := p.generator.Generate(ctx, prompt, sourceData, settings.AspectRatio)
	if err != nil {
		p.failItem(ctx, job, index, fmt.Errorf("generation failed: %w", err))
		return
	}

	resultPath, _, err := p.storage.UploadResultImage(ctx, resultImage, job.SessionID)
	if err != nil {
		p.failItem(ctx, job, index, fmt.Errorf("result upload failed: %w", err))
		return
	}

	item.Status = model.ItemStatusDone
	item.ResultPath = resultPath
	item.Error = ""
	p.db.UpdateBatchJobItems(ctx, job.JobID, job.Items)

	// 히스토리 기록 (best-effort)
	historyItem := model.HistoryItem{
		HistoryID:   fmt.Sprintf("%s-%d", job.JobID, index),
		SessionID:   job.SessionID,
		ImagePath:   resultPath,
		Prompt:      prompt,
		AspectRatio: settings.AspectRatio,
		Settings:    settings.Snapshot(),
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	if err := p.db.SaveHistory(ctx, historyItem); err != nil {
		log.Printf("⚠️  History save failed for batch item %s: %v", item.ItemID, err)
	}

	log.Printf("✅ Batch item %d/%d done: %s", index+1, len(job.Items), resultPath)
}

// failItem - 아이템 실패 기록 (다음 아이템은 계속 진행됨)
func (p *Processor) failItem(ctx context.Context, job *model.BatchJob, index int, err error) {
	log.Printf("❌ Batch item %d/%d failed: %v", index+1, len(job.Items), err)

	job.Items[index].Status = model.ItemStatusError
	job.Items[index].Error = err.Error()
	p.db.UpdateBatchJobItems(ctx, job.JobID, job.Items)
}

// parseSettings - JSONB 설정을 GenerationSettings로 변환
func parseSettings(raw map[string]interface{}) (portrait.GenerationSettings, error) {
	var settings portrait.GenerationSettings

	data, err := json.Marshal(raw)
	if err != nil {
		return settings, fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := json.Unmarshal(data, &settings); err != nil {
		return settings, fmt.Errorf("failed to parse settings: %w", err)
	}

	settings.Normalize()
	if err := settings.Validate(); err != nil {
		return settings, err
	}
	return settings, nil
}
