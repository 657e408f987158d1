package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"

	"github.com/supabase-community/supabase-go"
	"aura-portrait-server/modules/common/config"
	"aura-portrait-server/modules/common/model"
)

type Client struct {
	supabase *supabase.Client
}

// NewClient - Database 클라이언트 생성
func NewClient() *Client {
	cfg := config.GetConfig()

	supabaseClient, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, &supabase.ClientOptions{})
	if err != nil {
		log.Printf("❌ Failed to create Supabase client: %v", err)
		return nil
	}

	return &Client{
		supabase: supabaseClient,
	}
}

// SaveHistory - 히스토리 레코드 저장 (best-effort, 실패해도 호출측 상태는 롤백하지 않음)
func (c *Client) SaveHistory(ctx context.Context, item model.HistoryItem) error {
	log.Printf("💾 Saving history item: %s (session: %s)", item.HistoryID, item.SessionID)

	insertData := map[string]interface{}{
		"history_id":        item.HistoryID,
		"session_id":        item.SessionID,
		"image_path":        item.ImagePath,
		"composed_prompt":   item.Prompt,
		"aspect_ratio":      item.AspectRatio,
		"settings_snapshot": item.Settings,
		"created_at":        item.CreatedAt,
	}

	_, _, err := c.supabase.From("aura_history").
		Insert(insertData, false, "", "", "").
		Execute()

	if err != nil {
		return fmt.Errorf("failed to insert history record: %w", err)
	}

	log.Printf("✅ History item saved: %s", item.HistoryID)
	return nil
}

// ListHistory - 세션의 히스토리 조회 (최신순)
func (c *Client) ListHistory(ctx context.Context, sessionID string) ([]model.HistoryItem, error) {
	log.Printf("🔍 Fetching history for session: %s", sessionID)

	var items []model.HistoryItem

	data, _, err := c.supabase.From("aura_history").
		Select("*", "exact", false).
		Eq("session_id", sessionID).
		Execute()

	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}

	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse history response: %w", err)
	}

	// 최신순 정렬 (created_at은 RFC3339라 문자열 비교로 충분)
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt > items[j].CreatedAt
	})

	log.Printf("✅ History fetched: %d items", len(items))
	return items, nil
}

// DeleteHistory - 히스토리 한 건 삭제
func (c *Client) DeleteHistory(ctx context.Context, historyID string) error {
	log.Printf("🗑️  Deleting history item: %s", historyID)

	_, _, err := c.supabase.From("aura_history").
		Delete("", "").
		Eq("history_id", historyID).
		Execute()

	if err != nil {
		return fmt.Errorf("failed to delete history record: %w", err)
	}

	log.Printf("✅ History item deleted: %s", historyID)
	return nil
}

// ClearHistory - 세션의 히스토리 전체 삭제
func (c *Client) ClearHistory(ctx context.Context, sessionID string) error {
	log.Printf("🗑️  Clearing history for session: %s", sessionID)

	_, _, err := c.supabase.From("aura_history").
		Delete("", "").
		Eq("session_id", sessionID).
		Execute()

	if err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}

	log.Printf("✅ History cleared for session: %s", sessionID)
	return nil
}

// CreateBatchJob - 배치 작업 레코드 생성
func (c *Client) CreateBatchJob(ctx context.Context, job *model.BatchJob) error {
	log.Printf("💾 Creating batch job: %s (%d items)", job.JobID, len(job.Items))

	insertData := map[string]interface{}{
		"job_id":     job.JobID,
		"session_id": job.SessionID,
		"job_status": job.JobStatus,
		"settings":   job.Settings,
		"items":      job.Items,
		"created_at": "now()",
	}

	_, _, err := c.supabase.From("aura_batch_jobs").
		Insert(insertData, false, "", "", "").
		Execute()

	if err != nil {
		return fmt.Errorf("failed to insert batch job: %w", err)
	}

	log.Printf("✅ Batch job created: %s", job.JobID)
	return nil
}

// FetchBatchJob - 배치 작업 조회
func (c *Client) FetchBatchJob(jobID string) (*model.BatchJob, error) {
	log.Printf("🔍 Fetching batch job: %s", jobID)

	var jobs []model.BatchJob

	data, _, err := c.supabase.From("aura_batch_jobs").
		Select("*", "exact", false).
		Eq("job_id", jobID).
		Execute()

	if err != nil {
		return nil, fmt.Errorf("failed to query batch job: %w", err)
	}

	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("failed to parse batch job response: %w", err)
	}

	if len(jobs) == 0 {
		return nil, fmt.Errorf("batch job not found: %s", jobID)
	}

	job := &jobs[0]
	log.Printf("✅ Batch job fetched: %s (status: %s, items: %d)",
		job.JobID, job.JobStatus, len(job.Items))

	return job, nil
}

// UpdateBatchJobStatus - 배치 작업 상태 업데이트
func (c *Client) UpdateBatchJobStatus(ctx context.Context, jobID string, status string) error {
	log.Printf("📝 Updating batch job %s status to: %s", jobID, status)

	updateData := map[string]interface{}{
		"job_status": status,
		"updated_at": "now()",
	}

	if status == model.StatusProcessing {
		updateData["started_at"] = "now()"
	} else if status == model.StatusCompleted || status == model.StatusFailed {
		updateData["completed_at"] = "now()"
	}

	_, _, err := c.supabase.From("aura_batch_jobs").
		Update(updateData, "", "").
		Eq("job_id", jobID).
		Execute()

	if err != nil {
		return fmt.Errorf("failed to update batch job status: %w", err)
	}

	log.Printf("✅ Batch job %s status updated to: %s", jobID, status)
	return nil
}

// UpdateBatchJobItems - 배치 아이템 배열 전체 업데이트 (JSONB)
func (c *Client) UpdateBatchJobItems(ctx context.Context, jobID string, items []model.BatchJobItem) error {
	updateData := map[string]interface{}{
		"items":      items,
		"updated_at": "now()",
	}

	_, _, err := c.supabase.From("aura_batch_jobs").
		Update(updateData, "", "").
		Eq("job_id", jobID).
		Execute()

	if err != nil {
		return fmt.Errorf("failed to update batch job items: %w", err)
	}

	return nil
}
