package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/zhouzirui/enrique/backend/internal/metrics"
	"github.com/zhouzirui/enrique/backend/internal/model/speech"
)

var (
	// ErrEmptyAudio 上传的音频为空。
	ErrEmptyAudio = errors.New("audio data is empty")
	// ErrEmptyText 合成文本为空。
	ErrEmptyText = errors.New("text is empty")
	// ErrUnsupportedFormat 音频容器格式不受支持。
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// maxAudioBytes 是 Whisper 接口允许的上传上限。
const maxAudioBytes = 25 << 20

// AudioClient is the part of the OpenAI client the service uses.
type AudioClient interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
	CreateSpeech(ctx context.Context, request openai.CreateSpeechRequest) (openai.RawResponse, error)
}

// Option configures the Service.
type Option func(*Service)

// WithTempo overrides the ffmpeg tempo adjuster.
func WithTempo(t *Tempo) Option {
	return func(s *Service) { s.tempo = t }
}

// WithSleep overrides the backoff sleeper.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(s *Service) { s.sleep = sleep }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger.Named("speech")
		}
	}
}

// Service 语音服务核心业务逻辑
type Service struct {
	cfg    *speech.SpeechConfig
	client AudioClient
	tempo  *Tempo
	sleep  func(context.Context, time.Duration) error
	logger *zap.Logger
	now    func() time.Time
}

// NewService 创建基于 OpenAI 的语音服务实例
func NewService(cfg *speech.SpeechConfig, opts ...Option) *Service {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second}
	}
	return NewServiceWithClient(cfg, openai.NewClientWithConfig(clientCfg), opts...)
}

// NewServiceWithClient wires the service to any AudioClient.
func NewServiceWithClient(cfg *speech.SpeechConfig, client AudioClient, opts ...Option) *Service {
	s := &Service{
		cfg:    cfg,
		client: client,
		tempo:  NewTempo(),
		sleep:  sleepContext,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the active configuration.
func (s *Service) Config() *speech.SpeechConfig {
	return s.cfg
}

// TranscribeAudio 语音转文字，失败时按退避策略重试。
func (s *Service) TranscribeAudio(ctx context.Context, req *speech.ASRRequest) (*speech.ASRResponse, error) {
	if req.AudioData == nil {
		return nil, ErrEmptyAudio
	}
	format := strings.ToLower(strings.TrimPrefix(req.Format, "."))
	if format == "" {
		format = "wav"
	}
	if !SupportedInputFormat(format) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	// Buffer once so every retry can re-read the audio.
	audio, err := io.ReadAll(io.LimitReader(req.AudioData, maxAudioBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}
	if len(audio) > maxAudioBytes {
		return nil, fmt.Errorf("audio exceeds %d bytes", maxAudioBytes)
	}

	language := req.Language
	if language == "" {
		language = s.cfg.ASRLanguage
	}
	model := s.cfg.STTModel
	if model == "" {
		model = openai.Whisper1
	}

	started := s.now()
	text, attempts, err := withRetries(ctx, s, "transcribe", func(ctx context.Context) (string, error) {
		resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
			Model:    model,
			Reader:   bytes.NewReader(audio),
			FilePath: "audio." + format,
			Language: language,
		})
		if err != nil {
			return "", err
		}
		return resp.Text, nil
	})
	metrics.SpeechRequests.WithLabelValues("transcribe", metrics.StatusOf(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("speech-to-text failed after %d attempts: %w", attempts, err)
	}

	elapsed := s.now().Sub(started)
	s.logger.Info("STT complete", zap.String("session", req.SessionID), zap.Duration("elapsed", elapsed), zap.Int("attempts", attempts))

	return &speech.ASRResponse{
		SessionID: req.SessionID,
		Text:      strings.TrimSpace(text),
		Language:  language,
		Duration:  elapsed.Milliseconds(),
		Attempts:  attempts,
		CreatedAt: s.now().UTC(),
	}, nil
}

// SynthesizeSpeech 文字转语音，可选通过 ffmpeg 调整播放速度。
func (s *Service) SynthesizeSpeech(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, ErrEmptyText
	}

	voice := ResolveVoice(req.Voice, s.cfg.TTSVoice)
	format := req.Format
	if format == "" {
		format = s.cfg.TTSFormat
	}
	responseFormat := speechFormat(format)
	speed := req.Speed
	if speed == 0 {
		speed = s.cfg.TTSSpeed
	}
	if speed == 0 {
		speed = 1
	}
	model := openai.SpeechModel(s.cfg.TTSModel)
	if model == "" {
		model = openai.TTSModel1
	}

	started := s.now()
	audio, attempts, err := withRetries(ctx, s, "synthesize", func(ctx context.Context) ([]byte, error) {
		resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
			Model:          model,
			Input:          text,
			Voice:          voice,
			ResponseFormat: responseFormat,
		})
		if err != nil {
			return nil, err
		}
		defer resp.Close()
		return io.ReadAll(resp)
	})
	metrics.SpeechRequests.WithLabelValues("synthesize", metrics.StatusOf(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("text-to-speech failed after %d attempts: %w", attempts, err)
	}
	s.logger.Info("TTS synthesis complete", zap.String("session", req.SessionID), zap.Duration("elapsed", s.now().Sub(started)), zap.Int("bytes", len(audio)))

	adjusted := false
	if speed != 1 && s.tempo != nil {
		out, changed, err := s.tempo.Apply(ctx, audio, string(responseFormat), speed)
		if err != nil {
			s.logger.Warn("playback speed adjustment skipped", zap.Float64("speed", speed), zap.Error(err))
		} else {
			audio, adjusted = out, changed
		}
	}

	return &speech.TTSResponse{
		SessionID: req.SessionID,
		AudioData: audio,
		Format:    string(responseFormat),
		Voice:     string(voice),
		Speed:     speed,
		Tempo:     adjusted,
		Attempts:  attempts,
		CreatedAt: s.now().UTC(),
	}, nil
}

// TranscribeBuffer 语音转文字（使用字节数组）
func (s *Service) TranscribeBuffer(ctx context.Context, sessionID string, audioData []byte, format, language string) (*speech.ASRResponse, error) {
	return s.TranscribeAudio(ctx, &speech.ASRRequest{
		SessionID: sessionID,
		AudioData: bytes.NewReader(audioData),
		Format:    format,
		Language:  language,
	})
}

// SynthesizeToBuffer 文字转语音（返回字节数组）
func (s *Service) SynthesizeToBuffer(ctx context.Context, sessionID, text, voice string, speed float64) (*speech.TTSResponse, error) {
	return s.SynthesizeSpeech(ctx, &speech.TTSRequest{
		SessionID: sessionID,
		Text:      text,
		Voice:     voice,
		Speed:     speed,
	})
}
