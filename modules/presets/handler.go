package presets

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// Handler - 저장된 프롬프트 HTTP 핸들러
type Handler struct {
	store *Store
}

// NewHandler - 핸들러 생성
func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes - 라우트 등록
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/prompts", h.HandleList).Methods("GET")
	router.HandleFunc("/api/prompts", h.HandleAdd).Methods("POST")
	router.HandleFunc("/api/prompts/{id}", h.HandleRename).Methods("PATCH")
	router.HandleFunc("/api/prompts/{id}", h.HandleDelete).Methods("DELETE")
}

// HandleList - 목록 조회
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	prompts, err := h.store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"prompts": prompts,
	})
}

type addRequest struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// HandleAdd - 프롬프트 저장
func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	prompt, err := h.store.Add(r.Context(), req.Name, req.Text)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"prompt":  prompt,
	})
}

type renameRequest struct {
	Name string `json:"name"`
}

// HandleRename - 이름 변경
func (h *Handler) HandleRename(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.store.Rename(r.Context(), id, req.Name); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// HandleDelete - 삭제
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.store.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
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
