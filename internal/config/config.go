// Package config handles platform configuration
package config

import (
	"os"
	"strconv"
)

// Default wire profile for the live endpoint. Input is what the microphone
// captures, output is what the remote synthesizes. Fixed by the remote
// contract, overridable only for tests.
const (
	DefaultLiveEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	DefaultLiveModel    = "gemini-2.5-flash-native-audio-preview-09-2025"
	DefaultTTSModel     = "gemini-2.5-flash-preview-tts"
	DefaultTextModel    = "gemini-2.5-flash"
)

type Config struct {
	HTTPAddr         string
	APIKey           string
	LiveEndpoint     string
	LiveModel        string
	TTSModel         string
	TextModel        string
	InputSampleRate  int // mic capture rate (Hz)
	OutputSampleRate int // synthesized audio rate (Hz)
	FrameSize        int // samples per outbound frame
	DefaultVoice     string
	SpeechRate       float64 // playback speed multiplier
}

func Load() *Config {
	return &Config{
		HTTPAddr:         getEnv("HTTP_ADDR", ":8000"),
		APIKey:           getEnv("GEMINI_API_KEY", ""),
		LiveEndpoint:     getEnv("LIVE_ENDPOINT", DefaultLiveEndpoint),
		LiveModel:        getEnv("LIVE_MODEL", DefaultLiveModel),
		TTSModel:         getEnv("TTS_MODEL", DefaultTTSModel),
		TextModel:        getEnv("TEXT_MODEL", DefaultTextModel),
		InputSampleRate:  getEnvInt("INPUT_SAMPLE_RATE", 16000),
		OutputSampleRate: getEnvInt("OUTPUT_SAMPLE_RATE", 24000),
		FrameSize:        getEnvInt("FRAME_SIZE", 4096),
		DefaultVoice:     getEnv("DEFAULT_VOICE", "Kore"),
		SpeechRate:       clampRate(getEnvFloat("SPEECH_RATE", 1.0)),
	}
}

// ClampSpeechRate bounds a playback speed multiplier to the supported range.
func ClampSpeechRate(rate float64) float64 {
	return clampRate(rate)
}

func clampRate(rate float64) float64 {
	if rate < 0.5 {
		return 0.5
	}
	if rate > 1.5 {
		return 1.5
	}
	return rate
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
