package speech

// SpeechConfig 语音服务配置
type SpeechConfig struct {
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseUrl,omitempty"`

	// ASR 配置
	STTModel    string `json:"sttModel"`
	ASRLanguage string `json:"asrLanguage"`

	// TTS 配置
	TTSModel  string  `json:"ttsModel"`
	TTSVoice  string  `json:"ttsVoice"`
	TTSSpeed  float64 `json:"ttsSpeed"`
	TTSFormat string  `json:"ttsFormat"`

	// 通用配置
	MaxRetries int `json:"maxRetries"`
	Timeout    int `json:"timeout"` // seconds
}
