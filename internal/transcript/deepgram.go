package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// EU endpoint keeps caller audio inside the region.
	defaultDeepgramBaseURL = "https://api.eu.deepgram.com"
	defaultDeepgramModel   = "nova-2"
	defaultLanguage        = "de"
)

// Deepgram posts raw μ-law chunks to the prerecorded /v1/listen endpoint.
type Deepgram struct {
	HTTPClient *http.Client
	APIKey     string
	BaseURL    string
	Model      string
	Language   string
}

func NewDeepgram(apiKey, baseURL, model, language string) *Deepgram {
	if baseURL == "" {
		baseURL = defaultDeepgramBaseURL
	}
	if model == "" {
		model = defaultDeepgramModel
	}
	if language == "" {
		language = defaultLanguage
	}
	return &Deepgram{
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		APIKey:     apiKey,
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		Model:      model,
		Language:   language,
	}
}

func (d *Deepgram) Name() string { return "deepgram" }

type deepgramResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func (d *Deepgram) Recognize(ctx context.Context, mulaw []byte) (string, error) {
	if d.APIKey == "" {
		return "", fmt.Errorf("deepgram api key missing")
	}
	q := url.Values{}
	q.Set("encoding", "mulaw")
	q.Set("sample_rate", "8000")
	q.Set("channels", "1")
	q.Set("model", d.Model)
	q.Set("language", d.Language)
	q.Set("smart_format", "true")
	endpoint := d.BaseURL + "/v1/listen?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(mulaw))
	if err != nil {
		return "", fmt.Errorf("deepgram: create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+d.APIKey)
	req.Header.Set("Content-Type", "audio/mulaw")

	resp, err := d.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("deepgram: request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("deepgram: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("deepgram: status=%d body=%s", resp.StatusCode, string(body))
	}
	var dr deepgramResponse
	if err := json.Unmarshal(body, &dr); err != nil {
		return "", fmt.Errorf("deepgram: parse response: %w", err)
	}
	if len(dr.Results.Channels) == 0 || len(dr.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	return dr.Results.Channels[0].Alternatives[0].Transcript, nil
}
