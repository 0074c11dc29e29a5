package speech

import (
	"io"
)

// ASRRequest 语音识别请求
type ASRRequest struct {
	SessionID string    `json:"sessionId"`
	AudioData io.Reader `json:"-"`
	Format    string    `json:"format"`   // mp3, wav, webm, etc.
	Language  string    `json:"language"` // en, es, ...
}

// TTSRequest 语音合成请求
type TTSRequest struct {
	SessionID string  `json:"sessionId"`
	Text      string  `json:"text"`
	Voice     string  `json:"voice"`
	Speed     float64 `json:"speed"`  // playback tempo, 1.0 = unchanged
	Format    string  `json:"format"` // mp3, wav, etc.
}
