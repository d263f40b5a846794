package stt

import (
	"context"
	"fmt"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"

	"github.com/satriahrh/kuber/server/domain/repositories"
	"github.com/satriahrh/kuber/server/internal/audio"
)

// GoogleConfig holds recognition settings for headerless audio
type GoogleConfig struct {
	Language   string
	Encoding   string
	SampleRate int
}

type recognizeFunc func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)

// GoogleSpeechToText implements SpeechToText for Google Cloud
type GoogleSpeechToText struct {
	client    *speech.Client
	recognize recognizeFunc
	config    GoogleConfig
	logger    *zap.Logger
}

// Ensure GoogleSpeechToText implements the SpeechToText interface
var _ repositories.SpeechToText = (*GoogleSpeechToText)(nil)

// NewGoogleSpeechToText dials Google Cloud Speech using application default
// credentials
func NewGoogleSpeechToText(ctx context.Context, config GoogleConfig, logger *zap.Logger) (*GoogleSpeechToText, error) {
	if config.Language == "" {
		config.Language = "en-US"
		logger.Info("Using default STT language", zap.String("language", config.Language))
	}
	if config.Encoding == "" {
		config.Encoding = "LINEAR16"
	}
	if config.SampleRate == 0 {
		config.SampleRate = 16000
	}
	if _, err := getAudioEncoding(config.Encoding); err != nil {
		return nil, err
	}

	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}

	return &GoogleSpeechToText{
		client: client,
		recognize: func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
			return client.Recognize(ctx, req)
		},
		config: config,
		logger: logger,
	}, nil
}

// Transcribe sends the utterance to the synchronous Recognize API. WAV input
// is described by its own header; anything else uses the configured encoding.
func (g *GoogleSpeechToText) Transcribe(ctx context.Context, data []byte) (repositories.Transcription, error) {
	if len(data) == 0 {
		return repositories.Transcription{}, fmt.Errorf("no audio data received")
	}

	req, err := g.buildRequest(data)
	if err != nil {
		return repositories.Transcription{}, err
	}

	resp, err := g.recognize(ctx, req)
	if err != nil {
		return repositories.Transcription{}, fmt.Errorf("failed to recognize speech: %w", err)
	}

	transcription, ok := bestAlternative(resp)
	if !ok {
		// Silence is a valid utterance with an empty transcript
		g.logger.Debug("No speech recognized", zap.Int("audioSize", len(data)))
		return repositories.Transcription{}, nil
	}

	g.logger.Debug("Speech recognized",
		zap.Int("audioSize", len(data)),
		zap.Float64("confidence", transcription.Confidence))
	return transcription, nil
}

// Close releases the gRPC connection
func (g *GoogleSpeechToText) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

func (g *GoogleSpeechToText) buildRequest(data []byte) (*speechpb.RecognizeRequest, error) {
	config := &speechpb.RecognitionConfig{
		LanguageCode:               g.config.Language,
		EnableAutomaticPunctuation: true,
	}
	content := data

	if wav, err := audio.ParseWAV(data); err == nil {
		config.Encoding = speechpb.RecognitionConfig_LINEAR16
		config.SampleRateHertz = int32(wav.Format.SampleRate)
		config.AudioChannelCount = int32(wav.Format.Channels)
		content = wav.Data
	} else {
		encoding, err := getAudioEncoding(g.config.Encoding)
		if err != nil {
			return nil, err
		}
		config.Encoding = encoding
		config.SampleRateHertz = int32(g.config.SampleRate)
	}

	return &speechpb.RecognizeRequest{
		Config: config,
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: content},
		},
	}, nil
}

// bestAlternative joins the top alternative of every result and averages
// their confidence
func bestAlternative(resp *speechpb.RecognizeResponse) (repositories.Transcription, bool) {
	var text string
	var confidence float32
	count := 0

	for _, result := range resp.GetResults() {
		alternatives := result.GetAlternatives()
		if len(alternatives) == 0 || alternatives[0].GetTranscript() == "" {
			continue
		}
		if text != "" {
			text += " "
		}
		text += alternatives[0].GetTranscript()
		confidence += alternatives[0].GetConfidence()
		count++
	}

	if count == 0 {
		return repositories.Transcription{}, false
	}
	return repositories.Transcription{
		Text:       text,
		Confidence: float64(confidence) / float64(count),
	}, true
}

// getAudioEncoding converts string encoding to Google Speech API enum
func getAudioEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch encoding {
	case "WAV", "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "AMR":
		return speechpb.RecognitionConfig_AMR, nil
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE, nil
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}
