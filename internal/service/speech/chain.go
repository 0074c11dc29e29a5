package speech

import (
	"context"
	"fmt"
	"time"

	"github.com/zhouzirui/enrique/backend/internal/model/speech"
)

// Replier produces the assistant's text reply for one user message.
type Replier func(ctx context.Context, sessionID, text string) (string, error)

// BufferedSpeech is the buffer-level half of Service the chain needs.
type BufferedSpeech interface {
	TranscribeBuffer(ctx context.Context, sessionID string, audioData []byte, format, language string) (*speech.ASRResponse, error)
	SynthesizeToBuffer(ctx context.Context, sessionID, text, voice string, speed float64) (*speech.TTSResponse, error)
}

// SpeechChain 语音处理链：ASR → 助手回复 → TTS
type SpeechChain struct {
	speechSvc BufferedSpeech
	reply     Replier
}

// NewSpeechChain 创建语音处理链
func NewSpeechChain(speechSvc BufferedSpeech, reply Replier) *SpeechChain {
	return &SpeechChain{speechSvc: speechSvc, reply: reply}
}

// VoiceToVoiceInput 语音到语音的输入
type VoiceToVoiceInput struct {
	SessionID   string  `json:"sessionId"`
	AudioData   []byte  `json:"-"`
	AudioFormat string  `json:"audioFormat"`
	Language    string  `json:"language"`
	Voice       string  `json:"voice"`
	Speed       float64 `json:"speed"`
}

// VoiceToVoiceOutput 语音到语音的输出
type VoiceToVoiceOutput struct {
	SessionID   string `json:"sessionId"`
	InputText   string `json:"inputText"`
	OutputText  string `json:"outputText"`
	OutputAudio []byte `json:"-"`
	AudioFormat string `json:"audioFormat"`
	ProcessTime int64  `json:"processTime"`
}

// ProcessVoiceToVoice 处理语音到语音的完整流程
func (sc *SpeechChain) ProcessVoiceToVoice(ctx context.Context, input *VoiceToVoiceInput) (*VoiceToVoiceOutput, error) {
	started := time.Now()

	asrResp, err := sc.speechSvc.TranscribeBuffer(ctx, input.SessionID, input.AudioData, input.AudioFormat, input.Language)
	if err != nil {
		return nil, fmt.Errorf("ASR failed: %w", err)
	}
	if asrResp.Text == "" {
		return nil, fmt.Errorf("ASR failed: %w", ErrEmptyText)
	}

	replyText, err := sc.reply(ctx, input.SessionID, asrResp.Text)
	if err != nil {
		return nil, fmt.Errorf("reply failed: %w", err)
	}

	ttsResp, err := sc.speechSvc.SynthesizeToBuffer(ctx, input.SessionID, replyText, input.Voice, input.Speed)
	if err != nil {
		return nil, fmt.Errorf("TTS failed: %w", err)
	}

	return &VoiceToVoiceOutput{
		SessionID:   input.SessionID,
		InputText:   asrResp.Text,
		OutputText:  replyText,
		OutputAudio: ttsResp.AudioData,
		AudioFormat: ttsResp.Format,
		ProcessTime: time.Since(started).Milliseconds(),
	}, nil
}
