package worker

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"aura-portrait-server/modules/common/cancel"
	"aura-portrait-server/modules/common/config"
	"aura-portrait-server/modules/common/database"
	"aura-portrait-server/modules/common/model"
	redisClient "aura-portrait-server/modules/common/redis"
)

// EnqueueHandler - 배치 작업 생성/큐 등록 핸들러
type EnqueueHandler struct {
	rdb     *redis.Client
	db      *database.Client
	cancels *cancel.Registry
}

// CreateBatchRequest - 배치 작업 생성 요청
type CreateBatchRequest struct {
	SessionID   string                 `json:"sessionId"`
	SourcePaths []string               `json:"sourcePaths"` // Storage 경로 목록
	Settings    map[string]interface{} `json:"settings"`
}

// EnqueueRequest - 기존 작업 큐 재등록 요청
type EnqueueRequest struct {
	JobID string `json:"job_id"`
}

// EnqueueResponse - 응답
type EnqueueResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message,omitempty"`
	Error         string `json:"error,omitempty"`
	JobID         string `json:"job_id,omitempty"`
	Queue         string `json:"queue,omitempty"`
	QueuePosition int64  `json:"queuePosition,omitempty"`
}

// NewEnqueueHandler - EnqueueHandler 생성
func NewEnqueueHandler() *EnqueueHandler {
	cfg := config.GetConfig()

	rdb := redisClient.Connect(cfg)
	if rdb == nil {
		log.Println("⚠️ [Enqueue] Failed to connect to Redis")
		return nil
	}

	dbClient := database.NewClient()
	if dbClient == nil {
		log.Println("⚠️ [Enqueue] Failed to initialize Database client")
		return nil
	}

	log.Println("✅ [Enqueue] Handler initialized with Redis connection")
	return &EnqueueHandler{
		rdb:     rdb,
		db:      dbClient,
		cancels: cancel.NewRegistry(rdb),
	}
}

// RegisterRoutes - 라우트 등록
func (h *EnqueueHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/batch", h.HandleCreateBatch).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/batch/enqueue", h.HandleEnqueue).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/batch/{jobId}", h.HandleGetBatch).Methods("GET")
	r.HandleFunc("/api/batch/{jobId}/cancel", h.HandleCancelBatch).Methods("POST", "OPTIONS")
	log.Println("✅ Batch routes registered: /api/batch, /api/batch/enqueue")
}

// HandleCreateBatch - POST /api/batch (작업 생성 + 큐 등록)
func (h *EnqueueHandler) HandleCreateBatch(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	var req CreateBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("❌ [Batch] Invalid request: %v", err)
		json.NewEncoder(w).Encode(EnqueueResponse{Success: false, Error: "Invalid request body"})
		return
	}

	if req.SessionID == "" || len(req.SourcePaths) == 0 {
		json.NewEncoder(w).Encode(EnqueueResponse{Success: false, Error: "sessionId and sourcePaths are required"})
		return
	}

	items := make([]model.BatchJobItem, len(req.SourcePaths))
	for i, path := range req.SourcePaths {
		items[i] = model.BatchJobItem{
			ItemID:     uuid.New().String(),
			SourcePath: path,
			Status:     model.ItemStatusPending,
		}
	}

	job := &model.BatchJob{
		JobID:     uuid.New().String(),
		SessionID: req.SessionID,
		JobStatus: model.StatusPending,
		Settings:  req.Settings,
		Items:     items,
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := h.db.CreateBatchJob(ctx, job); err != nil {
		log.Printf("❌ [Batch] Failed to create job: %v", err)
		json.NewEncoder(w).Encode(EnqueueResponse{Success: false, Error: err.Error()})
		return
	}

	position, err := h.rdb.LPush(ctx, queueKey, job.JobID).Result()
	if err != nil {
		log.Printf("❌ [Batch] Failed to enqueue job: %v", err)
		json.NewEncoder(w).Encode(EnqueueResponse{Success: false, Error: err.Error()})
		return
	}

	log.Printf("📤 Batch job enqueued: %s (%d items, position %d)", job.JobID, len(items), position)

	json.NewEncoder(w).Encode(EnqueueResponse{
		Success:       true,
		Message:       "Batch job created and enqueued",
		JobID:         job.JobID,
		Queue:         queueKey,
		QueuePosition: position,
	})
}

// HandleEnqueue - POST /api/batch/enqueue (기존 작업 재등록)
func (h *EnqueueHandler) HandleEnqueue(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		json.NewEncoder(w).Encode(EnqueueResponse{Success: false, Error: "Invalid request body"})
		return
	}

	if req.JobID == "" {
		json.NewEncoder(w).Encode(EnqueueResponse{Success: false, Error: "job_id is required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// 존재 확인 후 큐에 넣음
	if _, err := h.db.FetchBatchJob(req.JobID); err != nil {
		json.NewEncoder(w).Encode(EnqueueResponse{Success: false, Error: err.Error()})
		return
	}

	position, err := h.rdb.LPush(ctx, queueKey, req.JobID).Result()
	if err != nil {
		log.Printf("❌ [Enqueue] Failed to enqueue job %s: %v", req.JobID, err)
		json.NewEncoder(w).Encode(EnqueueResponse{Success: false, Error: err.Error()})
		return
	}

	log.Printf("📤 Job re-enqueued: %s (position %d)", req.JobID, position)

	json.NewEncoder(w).Encode(EnqueueResponse{
		Success:       true,
		Message:       "Job enqueued",
		JobID:         req.JobID,
		Queue:         queueKey,
		QueuePosition: position,
	})
}

// HandleCancelBatch - POST /api/batch/{jobId}/cancel (진행 중 작업 취소)
// 이미 생성된 아이템 결과는 유지되고 남은 아이템만 중단됨
func (h *EnqueueHandler) HandleCancelBatch(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	jobID := mux.Vars(r)["jobId"]

	ctx, cancelFn := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancelFn()

	if _, err := h.db.FetchBatchJob(jobID); err != nil {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(EnqueueResponse{Success: false, Error: err.Error()})
		return
	}

	if err := h.cancels.MarkCancelled(ctx, jobID); err != nil {
		json.NewEncoder(w).Encode(EnqueueResponse{Success: false, Error: err.Error()})
		return
	}

	json.NewEncoder(w).Encode(EnqueueResponse{
		Success: true,
		Message: "Cancellation requested",
		JobID:   jobID,
	})
}

// HandleGetBatch - GET /api/batch/{jobId} (작업 상태 조회)
func (h *EnqueueHandler) HandleGetBatch(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	jobID := mux.Vars(r)["jobId"]

	job, err := h.db.FetchBatchJob(jobID)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(EnqueueResponse{Success: false, Error: err.Error()})
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"job":     job,
	})
}
