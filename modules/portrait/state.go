package portrait

// 세션 뷰 상태
const (
	StatusIdle    = "idle"
	StatusLoading = "loading"
)

// 배치 아이템 상태
const (
	ItemPending    = "pending"
	ItemProcessing = "processing"
	ItemDone       = "done"
	ItemError      = "error"
)

// State - 세션 하나의 전체 뷰 상태
// 모든 전이는 Session의 뮤텍스 안에서만 일어남
type State struct {
	SourceImage []byte
	ResultImage []byte
	VideoResult []byte

	Status    string
	LastError string

	Settings GenerationSettings
	Chat     []ChatMessage
	Batch    []BatchItem
}

// newState - 초기 상태 (idle, 빈 설정은 기본값으로 채움)
func newState() State {
	settings := GenerationSettings{}
	settings.Normalize()
	return State{
		Status:   StatusIdle,
		Settings: settings,
	}
}

// setSource - 새 원본 이미지 장착. 이전 결과물과 채팅 트랜스크립트는 초기화
func (s *State) setSource(image []byte) {
	s.SourceImage = image
	s.ResultImage = nil
	s.VideoResult = nil
	s.Chat = nil
	s.LastError = ""
}

// beginLoading - idle → loading 전이. 이미 loading이면 false
func (s *State) beginLoading() bool {
	if s.Status == StatusLoading {
		return false
	}
	s.Status = StatusLoading
	s.LastError = ""
	return true
}

// setResult - 결과 이미지 교체 (새 정지 이미지가 오면 이전 영상은 무효)
// 상태 전이는 settle이 담당
func (s *State) setResult(image []byte) {
	s.ResultImage = image
	s.VideoResult = nil
	s.LastError = ""
}

// setVideo - 영상 결과 장착 (정지 이미지는 유지)
func (s *State) setVideo(video []byte) {
	s.VideoResult = video
	s.LastError = ""
}

// recordError - 에러 기록. 이전 결과물은 그대로 유지
func (s *State) recordError(message string) {
	s.LastError = message
}

// settle - loading → idle. 성공/실패와 무관하게 항상 거치는 단일 전이
func (s *State) settle() {
	s.Status = StatusIdle
}
