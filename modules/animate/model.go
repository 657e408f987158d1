package animate

// AnimationRequest represents the request sent to the video API
type AnimationRequest struct {
	Image    string `json:"image"` // base64 PNG
	Prompt   string `json:"prompt"`
	Duration int    `json:"duration"` // seconds
	FPS      int    `json:"fps"`
	Loop     bool   `json:"loop"`
}

// AnimationResponse represents the response from the video API
type AnimationResponse struct {
	Video    string `json:"video,omitempty"`    // base64 MP4
	VideoURL string `json:"videoUrl,omitempty"` // download URL
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
}
