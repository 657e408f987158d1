package portrait

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"aura-portrait-server/modules/common/utils"
)

// Handler - 인물 사진 생성 HTTP 핸들러
type Handler struct {
	manager *Manager
}

// NewHandler - 핸들러 생성
func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

// RegisterRoutes - 라우트 등록
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/portrait/source", h.HandleSetSource).Methods("POST")
	router.HandleFunc("/api/portrait/settings", h.HandleUpdateSettings).Methods("POST")
	router.HandleFunc("/api/portrait/generate", h.HandleGenerate).Methods("POST")
	router.HandleFunc("/api/portrait/chat", h.HandleChatEdit).Methods("POST")
	router.HandleFunc("/api/portrait/batch", h.HandleBatch).Methods("POST")
	router.HandleFunc("/api/portrait/animate", h.HandleAnimate).Methods("POST")
	router.HandleFunc("/api/portrait/state", h.HandleState).Methods("GET")
	router.HandleFunc("/api/portrait/history", h.HandleHistory).Methods("GET")
	router.HandleFunc("/api/portrait/history", h.HandleClearHistory).Methods("DELETE")
	router.HandleFunc("/api/portrait/history/{historyId}", h.HandleDeleteHistory).Methods("DELETE")
}

type sourceRequest struct {
	SessionID string `json:"sessionId"`
	Image     string `json:"image"` // base64
}

// HandleSetSource - 원본 이미지 장착
func (h *Handler) HandleSetSource(w http.ResponseWriter, r *http.Request) {
	var req sourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.SessionID == "" || req.Image == "" {
		writeError(w, http.StatusBadRequest, "sessionId and image are required")
		return
	}

	imageData, err := utils.DecodeBase64Image(req.Image)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid base64 image")
		return
	}

	session := h.manager.GetOrCreate(req.SessionID)
	session.SetSourceImage(imageData)

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

type settingsRequest struct {
	SessionID string             `json:"sessionId"`
	Settings  GenerationSettings `json:"settings"`
}

// HandleUpdateSettings - 스타일 설정 교체
func (h *Handler) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session := h.manager.GetOrCreate(req.SessionID)
	if err := session.UpdateSettings(req.Settings); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":        true,
		"composedPrompt": ComposePrompt(session.Snapshot().Settings),
	})
}

// HandleGenerate - 단일 생성 요청
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session := h.manager.GetOrCreate(req.SessionID)
	outcome, err := session.SubmitGeneration(r.Context(), req.Settings)
	if err != nil {
		if errors.Is(err, ErrBusy) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		log.Printf("❌ Generation failed for session %s: %v", req.SessionID, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// 원본 이미지 없이 제출 → 조용히 no-op
	if outcome == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "skipped": true})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"image":     utils.ConvertImageToBase64(outcome.Image),
		"historyId": outcome.Item.HistoryID,
		"imagePath": outcome.Item.ImagePath,
		"saved":     outcome.Saved,
	})
}

type chatRequest struct {
	SessionID   string `json:"sessionId"`
	Instruction string `json:"instruction"`
}

// HandleChatEdit - 채팅 편집 요청
func (h *Handler) HandleChatEdit(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Instruction == "" {
		writeError(w, http.StatusBadRequest, "instruction is required")
		return
	}

	session := h.manager.GetOrCreate(req.SessionID)
	outcome, err := session.SubmitChatEdit(r.Context(), req.Instruction)
	if err != nil {
		if errors.Is(err, ErrBusy) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if outcome == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "skipped": true})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"image":   utils.ConvertImageToBase64(outcome.Image),
		"saved":   outcome.Saved,
	})
}

type batchRequest struct {
	SessionID string             `json:"sessionId"`
	Images    []string           `json:"images"` // base64 목록
	Settings  GenerationSettings `json:"settings"`
}

// HandleBatch - 인터랙티브 배치 (요청 범위 안에서 순차 처리)
func (h *Handler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.Images) == 0 {
		writeError(w, http.StatusBadRequest, "images are required")
		return
	}

	sources := make([][]byte, 0, len(req.Images))
	for _, encoded := range req.Images {
		data, err := utils.DecodeBase64Image(encoded)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid base64 image in batch")
			return
		}
		sources = append(sources, data)
	}

	session := h.manager.GetOrCreate(req.SessionID)
	items, err := session.SubmitBatch(r.Context(), sources, req.Settings)
	if err != nil {
		if errors.Is(err, ErrBusy) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	results := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		entry := map[string]interface{}{
			"id":     item.ID,
			"status": item.Status,
		}
		if item.Status == ItemDone {
			entry["image"] = utils.ConvertImageToBase64(item.ResultImage)
		}
		if item.Error != "" {
			entry["error"] = item.Error
		}
		results = append(results, entry)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"items":   results,
	})
}

type animateRequest struct {
	SessionID string `json:"sessionId"`
}

// HandleAnimate - 현재 결과물 애니메이션 요청
func (h *Handler) HandleAnimate(w http.ResponseWriter, r *http.Request) {
	var req animateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session := h.manager.GetOrCreate(req.SessionID)
	if err := session.SubmitAnimation(r.Context()); err != nil {
		if errors.Is(err, ErrBusy) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	snapshot := session.Snapshot()
	resp := map[string]interface{}{"success": true}
	if snapshot.VideoResult != nil {
		resp["video"] = utils.ConvertImageToBase64(snapshot.VideoResult)
	} else {
		resp["skipped"] = true
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleState - 세션 상태 조회
func (h *Handler) HandleState(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	snapshot := h.manager.GetOrCreate(sessionID).Snapshot()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessionId":      sessionID,
		"status":         snapshot.Status,
		"lastError":      snapshot.LastError,
		"hasSource":      snapshot.SourceImage != nil,
		"hasResult":      snapshot.ResultImage != nil,
		"hasVideo":       snapshot.VideoResult != nil,
		"settings":       snapshot.Settings,
		"composedPrompt": ComposePrompt(snapshot.Settings),
		"chat":           snapshot.Chat,
	})
}

// HandleHistory - 히스토리 조회
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	session := h.manager.GetOrCreate(sessionID)
	items, err := session.History(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"items":   items,
	})
}

// HandleDeleteHistory - 히스토리 한 건 삭제
func (h *Handler) HandleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	historyID := vars["historyId"]
	sessionID := r.URL.Query().Get("sessionId")

	if historyID == "" || sessionID == "" {
		writeError(w, http.StatusBadRequest, "historyId and sessionId are required")
		return
	}

	session := h.manager.GetOrCreate(sessionID)
	if err := session.DeleteHistoryItem(r.Context(), historyID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// HandleClearHistory - 히스토리 전체 삭제
func (h *Handler) HandleClearHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	session := h.manager.GetOrCreate(sessionID)
	if err := session.ClearHistory(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
