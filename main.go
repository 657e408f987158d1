package main

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"aura-portrait-server/modules/animate"
	"aura-portrait-server/modules/common/config"
	redisClient "aura-portrait-server/modules/common/redis"
	"aura-portrait-server/modules/common/database"
	"aura-portrait-server/modules/common/storage"
	"aura-portrait-server/modules/portrait"
	"aura-portrait-server/modules/presets"
	"aura-portrait-server/modules/worker"
)

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// 개발용 - 모든 origin 허용
		// 프로덕션에서는 특정 도메인만 허용하도록 수정
		return true
	},
}

// 연결된 클라이언트 정보 (세션 상태 스트림 구독자)
type Client struct {
	conn      *websocket.Conn
	sessionId string
	clientId  string
	send      chan []byte
}

// 세션별 구독자 묶음
type SessionChannel struct {
	id           string
	clients      map[string]*Client
	mutex        sync.RWMutex
	createdAt    time.Time
	lastActivity time.Time
}

// 채널 매니저
type ChannelManager struct {
	channels map[string]*SessionChannel
	mutex    sync.RWMutex
	metrics  *ServerMetrics
}

// 서버 메트릭
type ServerMetrics struct {
	TotalSessions    int       `json:"totalSessions"`
	ActiveSessions   int       `json:"activeSessions"`
	TotalConnections int       `json:"totalConnections"`
	StartTime        time.Time `json:"startTime"`
	mutex            sync.RWMutex
}

var channelManager = &ChannelManager{
	channels: make(map[string]*SessionChannel),
	metrics: &ServerMetrics{
		StartTime: time.Now(),
	},
}

// 채널 가져오기 또는 생성
func (cm *ChannelManager) getOrCreateChannel(sessionId string) *SessionChannel {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	channel, exists := cm.channels[sessionId]
	if !exists {
		now := time.Now()
		channel = &SessionChannel{
			id:           sessionId,
			clients:      make(map[string]*Client),
			createdAt:    now,
			lastActivity: now,
		}
		cm.channels[sessionId] = channel

		// 메트릭 업데이트
		cm.metrics.mutex.Lock()
		cm.metrics.TotalSessions++
		cm.metrics.ActiveSessions++
		cm.metrics.mutex.Unlock()

		log.Printf("✅ Created new session channel: %s (Total: %d, Active: %d)",
			sessionId, cm.metrics.TotalSessions, cm.metrics.ActiveSessions)
	}

	channel.lastActivity = time.Now()
	return channel
}

// 클라이언트를 채널에 추가
func (sc *SessionChannel) addClient(client *Client) {
	sc.mutex.Lock()
	sc.clients[client.clientId] = client
	sc.lastActivity = time.Now()
	clientCount := len(sc.clients)
	sc.mutex.Unlock()

	// 메트릭 업데이트
	channelManager.metrics.mutex.Lock()
	channelManager.metrics.TotalConnections++
	channelManager.metrics.mutex.Unlock()

	log.Printf("👤 Client %s subscribed to session %s (Clients: %d, Total Connections: %d)",
		client.clientId, sc.id, clientCount, channelManager.metrics.TotalConnections)
}

// 클라이언트를 채널에서 제거
func (sc *SessionChannel) removeClient(clientId string) {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	if client, exists := sc.clients[clientId]; exists {
		close(client.send)
		delete(sc.clients, clientId)
		sc.lastActivity = time.Now()

		log.Printf("👋 Client %s left session %s (Remaining: %d)", clientId, sc.id, len(sc.clients))

		if len(sc.clients) == 0 {
			log.Printf("🗑️  Session channel %s is now empty, will be cleaned up", sc.id)
		}
	}
}

// 채널의 모든 구독자에게 이벤트 브로드캐스트
// 버퍼가 가득 찬 구독자는 RLock 아래에서 건드리지 않고 모아뒀다가
// removeClient로 정리함 (close는 removeClient가 단독 소유)
func (sc *SessionChannel) broadcast(event portrait.StatusEvent) {
	messageBytes, err := json.Marshal(event)
	if err != nil {
		log.Printf("Error marshaling event: %v", err)
		return
	}

	var stale []string

	sc.mutex.RLock()
	for clientId, client := range sc.clients {
		select {
		case client.send <- messageBytes:
		default:
			stale = append(stale, clientId)
		}
	}
	sc.mutex.RUnlock()

	for _, clientId := range stale {
		log.Printf("⚠️  Dropping slow subscriber %s from session %s", clientId, sc.id)
		sc.removeClient(clientId)
	}
}

// broadcastStatusEvent - 세션 컨트롤러에서 올라온 이벤트를 구독자에게 전달
func broadcastStatusEvent(event portrait.StatusEvent) {
	channelManager.mutex.RLock()
	channel, exists := channelManager.channels[event.SessionID]
	channelManager.mutex.RUnlock()

	if exists {
		channel.broadcast(event)
	}
}

// 빈 채널 정리
func (cm *ChannelManager) cleanupEmptyChannels() {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	cleaned := 0
	for sessionId, channel := range cm.channels {
		channel.mutex.RLock()
		isEmpty := len(channel.clients) == 0
		channel.mutex.RUnlock()

		if isEmpty {
			delete(cm.channels, sessionId)
			cleaned++

			cm.metrics.mutex.Lock()
			cm.metrics.ActiveSessions--
			cm.metrics.mutex.Unlock()

			log.Printf("🧹 Cleaned up empty session channel: %s", sessionId)
		}
	}

	if cleaned > 0 {
		log.Printf("🗑️  Cleaned up %d empty channels (Active: %d)", cleaned, cm.metrics.ActiveSessions)
	}
}

// 만료된 채널 정리 (24시간 후, 비활성 2시간)
func (cm *ChannelManager) cleanupExpiredChannels() {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	now := time.Now()
	expiredThreshold := 24 * time.Hour
	inactiveThreshold := 2 * time.Hour

	cleaned := 0
	for sessionId, channel := range cm.channels {
		channel.mutex.RLock()
		isExpired := now.Sub(channel.createdAt) > expiredThreshold
		isInactive := now.Sub(channel.lastActivity) > inactiveThreshold && len(channel.clients) == 0
		channel.mutex.RUnlock()

		if isExpired || isInactive {
			// close와 map 삭제를 같은 락 안에서 묶어야 readPump의
			// removeClient가 같은 채널을 두 번 닫지 않음
			channel.mutex.Lock()
			for clientId, client := range channel.clients {
				close(client.send)
				delete(channel.clients, clientId)
				log.Printf("🔌 Disconnecting client %s from expired session %s", clientId, sessionId)
			}
			channel.mutex.Unlock()

			delete(cm.channels, sessionId)
			cleaned++

			cm.metrics.mutex.Lock()
			cm.metrics.ActiveSessions--
			cm.metrics.mutex.Unlock()

			reason := "expired"
			if isInactive {
				reason = "inactive"
			}
			log.Printf("⏰ Cleaned up %s session channel: %s (Age: %v, Inactive: %v)",
				reason, sessionId, now.Sub(channel.createdAt), now.Sub(channel.lastActivity))
		}
	}

	if cleaned > 0 {
		log.Printf("🧼 Cleaned up %d expired/inactive channels (Active: %d)", cleaned, cm.metrics.ActiveSessions)
	}
}

// 정기적 정리 작업 시작
func (cm *ChannelManager) startCleanupRoutine() {
	// 5분마다 빈 채널 정리
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()

		for range ticker.C {
			cm.cleanupEmptyChannels()
		}
	}()

	// 30분마다 만료된 채널 정리
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for range ticker.C {
			cm.cleanupExpiredChannels()
		}
	}()

	log.Printf("🔄 Started channel cleanup routines (Empty: 5min, Expired: 30min)")
}

// WebSocket 핸들러 (상태 이벤트 구독)
func handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	sessionId := r.URL.Query().Get("session")
	clientId := r.URL.Query().Get("client")

	if sessionId == "" || clientId == "" {
		log.Printf("Missing session or client parameter")
		conn.Close()
		return
	}

	client := &Client{
		conn:      conn,
		sessionId: sessionId,
		clientId:  clientId,
		send:      make(chan []byte, 256),
	}

	log.Printf("🔍 New WebSocket connection - Session: %s, Client: %s", sessionId, clientId)

	channel := channelManager.getOrCreateChannel(sessionId)
	channel.addClient(client)

	go client.writePump()
	go client.readPump(channel)
}

// 클라이언트로부터 메시지 읽기 (구독 유지용, ping만 처리)
func (c *Client) readPump(channel *SessionChannel) {
	defer func() {
		channel.removeClient(c.clientId)
		c.conn.Close()
	}()

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}
		// 구독 전용 채널이라 수신 메시지는 활동 시간 갱신 용도로만 사용
		channel.mutex.Lock()
		channel.lastActivity = time.Now()
		channel.mutex.Unlock()
	}
}

// 클라이언트로 메시지 쓰기
func (c *Client) writePump() {
	defer c.conn.Close()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("WebSocket write error: %v", err)
				return
			}
		}
	}
}

// CORS 헤더 추가
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// 헬스 체크 엔드포인트
func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "aura-portrait-server",
	})
}

// 세션 채널 정보 조회 엔드포인트
func getSessionInfo(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sessionId := vars["sessionId"]

	channelManager.mutex.RLock()
	channel, exists := channelManager.channels[sessionId]
	channelManager.mutex.RUnlock()

	if !exists {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "Session not found",
		})
		return
	}

	channel.mutex.RLock()
	clientCount := len(channel.clients)
	clientIds := make([]string, 0, len(channel.clients))
	for clientId := range channel.clients {
		clientIds = append(clientIds, clientId)
	}
	channel.mutex.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"sessionId":    sessionId,
		"clientCount":  clientCount,
		"clients":      clientIds,
		"createdAt":    channel.createdAt,
		"lastActivity": channel.lastActivity,
		"age":          time.Since(channel.createdAt).String(),
		"inactive":     time.Since(channel.lastActivity).String(),
	})
}

// 서버 메트릭 조회 엔드포인트
func getMetrics(w http.ResponseWriter, r *http.Request) {
	channelManager.metrics.mutex.RLock()
	metrics := ServerMetrics{
		TotalSessions:    channelManager.metrics.TotalSessions,
		ActiveSessions:   channelManager.metrics.ActiveSessions,
		TotalConnections: channelManager.metrics.TotalConnections,
		StartTime:        channelManager.metrics.StartTime,
	}
	channelManager.metrics.mutex.RUnlock()

	uptime := time.Since(metrics.StartTime)

	channelManager.mutex.RLock()
	channelDetails := make([]map[string]interface{}, 0, len(channelManager.channels))
	totalClients := 0

	for sessionId, channel := range channelManager.channels {
		channel.mutex.RLock()
		clientCount := len(channel.clients)
		totalClients += clientCount

		channelDetails = append(channelDetails, map[string]interface{}{
			"sessionId":    sessionId,
			"clientCount":  clientCount,
			"createdAt":    channel.createdAt,
			"lastActivity": channel.lastActivity,
			"age":          time.Since(channel.createdAt).String(),
			"inactive":     time.Since(channel.lastActivity).String(),
		})
		channel.mutex.RUnlock()
	}
	channelManager.mutex.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"server": map[string]interface{}{
			"uptime":           uptime.String(),
			"startTime":        metrics.StartTime,
			"totalSessions":    metrics.TotalSessions,
			"activeSessions":   metrics.ActiveSessions,
			"totalConnections": metrics.TotalConnections,
			"currentClients":   totalClients,
		},
		"sessions": channelDetails,
	})
}

// 모든 채널 강제 정리 (관리자용)
func forceCleanupChannels(w http.ResponseWriter, r *http.Request) {
	channelManager.cleanupEmptyChannels()
	channelManager.cleanupExpiredChannels()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "Cleanup completed",
	})
}

func main() {
	// 환경변수 로드
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	// 정리 루틴 시작
	channelManager.startCleanupRoutine()

	// Redis Queue Worker 시작 (백그라운드)
	go worker.StartWorker()

	// 세션 컨트롤러 초기화
	dbClient := database.NewClient()
	if dbClient == nil {
		log.Fatal("❌ Failed to initialize Database client")
	}

	sessionManager := portrait.NewManager(portrait.Deps{
		Generator: portrait.NewGeminiGenerator(),
		Animator:  animate.NewService(),
		History:   dbClient,
		Storage:   storage.NewClient(),
		Notify:    broadcastStatusEvent,
		BatchRate: rate.Every(time.Minute / time.Duration(cfg.BatchItemsPerMinute)),
	})

	// 라우터 설정
	r := mux.NewRouter()

	// CORS 미들웨어 적용
	r.Use(enableCORS)

	// 라우트 설정
	r.HandleFunc("/", healthCheck).Methods("GET")
	r.HandleFunc("/health", healthCheck).Methods("GET")
	r.HandleFunc("/ws", handleWebSocket)
	r.HandleFunc("/session/{sessionId}", getSessionInfo).Methods("GET")
	r.HandleFunc("/metrics", getMetrics).Methods("GET")
	r.HandleFunc("/admin/cleanup", forceCleanupChannels).Methods("POST")

	// 모듈 라우트 등록
	portrait.NewHandler(sessionManager).RegisterRoutes(r)

	rdb := redisClient.Connect(cfg)
	if rdb == nil {
		log.Fatal("❌ Failed to connect to Redis")
	}
	presets.NewHandler(presets.NewStore(rdb)).RegisterRoutes(r)

	if enqueueHandler := worker.NewEnqueueHandler(); enqueueHandler != nil {
		enqueueHandler.RegisterRoutes(r)
	}

	port := cfg.Port

	log.Printf("🚀 Aura Portrait Server starting on port %s", port)
	log.Printf("📡 WebSocket endpoint: ws://localhost:%s/ws", port)
	log.Printf("❤️  Health check: http://localhost:%s/health", port)
	log.Printf("📊 Metrics: http://localhost:%s/metrics", port)

	// 서버 시작
	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
