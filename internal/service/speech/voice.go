package speech

import (
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

var supportedVoices = map[string]openai.SpeechVoice{
	"alloy":   openai.VoiceAlloy,
	"ash":     openai.SpeechVoice("ash"),
	"ballad":  openai.SpeechVoice("ballad"),
	"coral":   openai.SpeechVoice("coral"),
	"echo":    openai.VoiceEcho,
	"fable":   openai.VoiceFable,
	"onyx":    openai.VoiceOnyx,
	"nova":    openai.VoiceNova,
	"sage":    openai.SpeechVoice("sage"),
	"shimmer": openai.VoiceShimmer,
	"verse":   openai.SpeechVoice("verse"),
}

// ResolveVoice 依次尝试请求的声音、人设声音与默认声音，返回第一个受支持的。
func ResolveVoice(candidates ...string) openai.SpeechVoice {
	for _, candidate := range candidates {
		if voice, ok := supportedVoices[strings.ToLower(strings.TrimSpace(candidate))]; ok {
			return voice
		}
	}
	return openai.VoiceAlloy
}

var supportedFormats = map[string]struct{}{
	"flac": {}, "m4a": {}, "mp3": {}, "mp4": {}, "mpeg": {}, "mpga": {}, "ogg": {}, "wav": {}, "webm": {},
}

// SupportedInputFormat reports whether Whisper accepts the container format.
func SupportedInputFormat(format string) bool {
	_, ok := supportedFormats[strings.ToLower(strings.TrimPrefix(format, "."))]
	return ok
}

func speechFormat(format string) openai.SpeechResponseFormat {
	switch strings.ToLower(format) {
	case "opus":
		return openai.SpeechResponseFormatOpus
	case "aac":
		return openai.SpeechResponseFormatAac
	case "flac":
		return openai.SpeechResponseFormatFlac
	case "wav":
		return openai.SpeechResponseFormat("wav")
	case "pcm":
		return openai.SpeechResponseFormat("pcm")
	default:
		return openai.SpeechResponseFormatMp3
	}
}
