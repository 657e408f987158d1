package model

// HistoryItem - 생성 성공마다 한 건씩 기록되는 불변 레코드
// 소유권: Supabase가 durable owner, 세션 컨트롤러는 read-through 캐시만 유지
type HistoryItem struct {
	HistoryID   string                 `json:"history_id"`
	SessionID   string                 `json:"session_id"`
	ImagePath   string                 `json:"image_path"`
	Prompt      string                 `json:"composed_prompt"`
	AspectRatio string                 `json:"aspect_ratio"`
	Settings    map[string]interface{} `json:"settings_snapshot"`
	CreatedAt   string                 `json:"created_at"`
}

// BatchJob - 큐로 처리되는 배치 작업 (aura_batch_jobs 테이블)
type BatchJob struct {
	JobID     string                 `json:"job_id"`
	SessionID string                 `json:"session_id"`
	JobStatus string                 `json:"job_status"`
	Settings  map[string]interface{} `json:"settings"`
	Items     []BatchJobItem         `json:"items"`
	CreatedAt string                 `json:"created_at,omitempty"`
}

// BatchJobItem - 배치 내 개별 이미지. pending→processing→{done,error}
type BatchJobItem struct {
	ItemID     string `json:"item_id"`
	SourcePath string `json:"source_path"`
	Status     string `json:"status"`
	ResultPath string `json:"result_path,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Job 상태
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "user_cancelled"
)

// Batch 아이템 상태
const (
	ItemStatusPending    = "pending"
	ItemStatusProcessing = "processing"
	ItemStatusDone       = "done"
	ItemStatusError      = "error"
)
