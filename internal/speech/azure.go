package speech

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hbenali/friday/internal/logger"
)

// Env var names for Azure Speech credentials.
const (
	EnvAzureSpeechKey    = "AZURE_SPEECH_KEY"
	EnvAzureSpeechRegion = "AZURE_SPEECH_REGION"
)

// AzureOption configures the Azure TTS client.
type AzureOption func(*AzureClient)

// WithAudioFormat sets the audio output format.
func WithAudioFormat(format string) AzureOption {
	return func(c *AzureClient) { c.format = format }
}

// WithHTTPTimeout sets the HTTP client timeout for synthesis requests.
func WithHTTPTimeout(d time.Duration) AzureOption {
	return func(c *AzureClient) { c.httpClient.Timeout = d }
}

// AzureClient renders speech via Azure Cognitive Services. It is the
// primary (network-backed) synthesis backend.
type AzureClient struct {
	subscriptionKey string
	region          string
	format          string
	httpClient      *http.Client
	log             *logger.Logger
}

// NewAzureClient creates an Azure TTS client with the given credentials.
func NewAzureClient(key, region string, log *logger.Logger, opts ...AzureOption) *AzureClient {
	c := &AzureClient{
		subscriptionKey: key,
		region:          region,
		format:          DefaultAudioFormat,
		httpClient:      &http.Client{Timeout: 30 * time.Second},
		log:             log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name identifies this backend in logs and recognition results.
func (c *AzureClient) Name() string { return "azure" }

// Synthesize converts text to WAV bytes, applying the rate and volume
// from params via SSML prosody.
func (c *AzureClient) Synthesize(ctx context.Context, text string, params VoiceParams) ([]byte, error) {
	url := fmt.Sprintf("https://%s.tts.speech.microsoft.com/cognitiveservices/v1", c.region)

	ssml := buildSSML(text, params)
	c.log.Debug("azure tts: synthesizing %d chars (voice=%s rate=%d vol=%.2f)",
		len(text), params.Voice, params.Rate, params.Volume)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(ssml))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.subscriptionKey)
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", c.format)
	req.Header.Set("User-Agent", "Friday/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("azure tts error %d: %s", resp.StatusCode, string(body))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading audio data: %w", err)
	}
	c.log.Debug("azure tts: got %d bytes of audio", len(audio))
	return audio, nil
}

// buildSSML creates the synthesis request markup. Azure interprets
// prosody rate as a percentage delta from the voice's native speed;
// 150 wpm is treated as that baseline.
func buildSSML(text string, params VoiceParams) string {
	voice := params.Voice
	if voice == "" {
		voice = DefaultVoice
	}
	ratePct := 0
	if params.Rate > 0 {
		ratePct = (params.Rate - 150) * 100 / 150
	}
	volume := params.Volume
	if volume < 0 {
		volume = 1
	}
	return fmt.Sprintf(
		`<speak version='1.0' xml:lang='en-US'><voice xml:lang='en-US' name='%s'><prosody rate='%+d%%' volume='%d'>%s</prosody></voice></speak>`,
		voice, ratePct, int(volume*100), escapeSSML(text),
	)
}

var ssmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"'", "&apos;",
	`"`, "&quot;",
)

func escapeSSML(text string) string {
	return ssmlEscaper.Replace(text)
}
