// Package live defines the JSON wire contract of the bidirectional
// streaming endpoint. Preserved exactly as the remote service documents it;
// field framing is an external contract, not ours to improve.
package live

import "fmt"

// MIME types for the fixed PCM profiles.
const (
	InputMIMEFormat = "audio/pcm;rate=%d"
)

// InputMIME renders the outbound PCM mime type for a capture rate.
func InputMIME(sampleRate int) string {
	return fmt.Sprintf(InputMIMEFormat, sampleRate)
}

// ClientMessage is the envelope for all outbound messages. Exactly one
// member is set.
type ClientMessage struct {
	Setup         *Setup         `json:"setup,omitempty"`
	RealtimeInput *RealtimeInput `json:"realtimeInput,omitempty"`
}

// Setup is the authentication/config handshake sent once after dial.
type Setup struct {
	Model                    string            `json:"model"`
	GenerationConfig         *GenerationConfig `json:"generationConfig,omitempty"`
	SystemInstruction        *Content          `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *struct{}         `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}         `json:"outputAudioTranscription,omitempty"`
}

// GenerationConfig requests response modalities and voice identity.
type GenerationConfig struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *SpeechConfig `json:"speechConfig,omitempty"`
}

// SpeechConfig selects the synthesized voice.
type SpeechConfig struct {
	VoiceConfig *VoiceConfig `json:"voiceConfig,omitempty"`
}

type VoiceConfig struct {
	PrebuiltVoiceConfig *PrebuiltVoiceConfig `json:"prebuiltVoiceConfig,omitempty"`
}

type PrebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

// Content is a sequence of parts (text and/or inline binary payloads).
type Content struct {
	Parts []Part `json:"parts"`
}

// Part is one piece of content. Text and InlineData are mutually optional.
type Part struct {
	Text       string `json:"text,omitempty"`
	InlineData *Blob  `json:"inlineData,omitempty"`
}

// Blob is an inline binary payload, base64-encoded for transport.
type Blob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// RealtimeInput carries continuous media from the client.
type RealtimeInput struct {
	MediaChunks []Blob `json:"mediaChunks"`
}

// ServerMessage is the envelope for all inbound messages. Members are
// optional and may be interleaved in one message.
type ServerMessage struct {
	SetupComplete *struct{}      `json:"setupComplete,omitempty"`
	ServerContent *ServerContent `json:"serverContent,omitempty"`
	GoAway        *GoAway        `json:"goAway,omitempty"`
}

// ServerContent interleaves transcript fragments, synthesized audio, and
// turn/interruption signals.
type ServerContent struct {
	InputTranscription  *Transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *Transcription `json:"outputTranscription,omitempty"`
	ModelTurn           *Content       `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
}

// Transcription is one incremental transcript fragment.
type Transcription struct {
	Text string `json:"text"`
}

// GoAway warns that the server will close the connection.
type GoAway struct {
	TimeLeft string `json:"timeLeft,omitempty"`
}

// InlineAudio returns the first inline audio payload in the model turn, or
// empty when the message carries none.
func (sc *ServerContent) InlineAudio() (string, bool) {
	if sc == nil || sc.ModelTurn == nil {
		return "", false
	}
	for _, p := range sc.ModelTurn.Parts {
		if p.InlineData != nil && p.InlineData.Data != "" {
			return p.InlineData.Data, true
		}
	}
	return "", false
}
