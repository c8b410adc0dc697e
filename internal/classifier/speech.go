package classifier

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"leadflow_backend/internal/leads/ports"
	"leadflow_backend/internal/metrics"

	"google.golang.org/genai"
)

const (
	defaultTTSModel   = "gemini-2.5-flash-preview-tts"
	defaultVoice      = "Kore"
	defaultSampleRate = 24000

	voiceNoteMIME     = "audio/ogg"
	voiceNoteFilename = "reply.ogg"
)

const speakInstruction = "Say this in a warm, friendly Hindi real estate sales tone:\n\n"

// PCM is raw signed 16-bit little-endian mono audio.
type PCM struct {
	Data       []byte
	SampleRate int
}

// Synthesizer speaks text.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (PCM, error)
}

// Transcoder encodes PCM as a WhatsApp voice note.
type Transcoder interface {
	Transcode(ctx context.Context, pcm PCM) ([]byte, error)
}

// GeminiVoice is a Synthesizer backed by a Gemini speech model.
type GeminiVoice struct {
	client *genai.Client
	model  string
	voice  string
}

// Voice returns a speech synthesizer sharing g's client.
func (g *Gemini) Voice(model, voice string) *GeminiVoice {
	if model = strings.TrimSpace(model); model == "" {
		model = defaultTTSModel
	}
	if voice = strings.TrimSpace(voice); voice == "" {
		voice = defaultVoice
	}
	return &GeminiVoice{client: g.client, model: model, voice: voice}
}

func (v *GeminiVoice) Synthesize(ctx context.Context, text string) (PCM, error) {
	resp, err := v.client.Models.GenerateContent(ctx, v.model, genai.Text(text), &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: v.voice},
			},
		},
	})
	if err != nil {
		return PCM{}, err
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			return PCM{Data: part.InlineData.Data, SampleRate: SampleRate(part.InlineData.MIMEType)}, nil
		}
	}
	return PCM{}, ErrEmptyResponse
}

// SampleRate reads the rate parameter of an "audio/L16;codec=pcm;rate=24000"
// media type, falling back to 24 kHz.
func SampleRate(mediaType string) int {
	_, params, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return defaultSampleRate
	}
	rate, err := strconv.Atoi(params["rate"])
	if err != nil || rate <= 0 {
		return defaultSampleRate
	}
	return rate
}

// FFmpeg transcodes PCM to Ogg/Opus with an ffmpeg binary.
type FFmpeg struct {
	path string
}

// NewFFmpeg resolves the ffmpeg binary at path or on PATH.
func NewFFmpeg(path string) (*FFmpeg, error) {
	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	return &FFmpeg{path: resolved}, nil
}

func (f *FFmpeg) Transcode(ctx context.Context, pcm PCM) ([]byte, error) {
	cmd := exec.CommandContext(ctx, f.path,
		"-hide_banner", "-loglevel", "error",
		"-f", "s16le", "-ar", strconv.Itoa(pcm.SampleRate), "-ac", "1", "-i", "pipe:0",
		"-c:a", "libopus", "-b:a", "32k", "-f", "ogg", "pipe:1",
	)
	cmd.Stdin = bytes.NewReader(pcm.Data)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out.Bytes(), nil
}

// Speaker turns AI replies into voice notes.
type Speaker struct {
	synth      Synthesizer
	transcoder Transcoder
	metrics    *metrics.Metrics
}

func NewSpeaker(synth Synthesizer, transcoder Transcoder, m *metrics.Metrics) *Speaker {
	return &Speaker{synth: synth, transcoder: transcoder, metrics: m}
}

func (s *Speaker) Speak(ctx context.Context, text string) (ports.Audio, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ports.Audio{}, ErrEmptyResponse
	}

	started := time.Now()
	pcm, err := s.synth.Synthesize(ctx, speakInstruction+text)
	if err == nil && len(pcm.Data) == 0 {
		err = ErrEmptyResponse
	}
	s.metrics.ObserveClassifier("speak", started, err)
	if err != nil {
		return ports.Audio{}, fmt.Errorf("synthesize speech: %w", err)
	}
	if pcm.SampleRate <= 0 {
		pcm.SampleRate = defaultSampleRate
	}

	encoded, err := s.transcoder.Transcode(ctx, pcm)
	if err != nil {
		return ports.Audio{}, fmt.Errorf("encode voice note: %w", err)
	}
	return ports.Audio{Data: encoded, MIMEType: voiceNoteMIME, Filename: voiceNoteFilename}, nil
}
