package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/chadiek/phone-assistant/internal/audio"
)

// Whisper calls a local whisper.cpp style inference server that accepts a
// multipart "file" field and answers {"text": "..."}.
type Whisper struct {
	HTTPClient *http.Client
	Endpoint   string
}

func NewWhisper(endpoint string) *Whisper {
	if endpoint == "" {
		endpoint = "http://localhost:7070/inference"
	}
	return &Whisper{
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		Endpoint:   endpoint,
	}
}

func (w *Whisper) Name() string { return "whisper" }

type whisperResponse struct {
	Text string `json:"text"`
}

func (w *Whisper) Recognize(ctx context.Context, mulaw []byte) (string, error) {
	var b bytes.Buffer
	mw := multipart.NewWriter(&b)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(audio.MulawToWAV(mulaw)); err != nil {
		return "", fmt.Errorf("write audio to form: %w", err)
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("write form field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.Endpoint, &b)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := w.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("post to whisper server: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("whisper server returned status %d: %s", resp.StatusCode, string(body))
	}
	var wr whisperResponse
	if err := json.Unmarshal(body, &wr); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	return wr.Text, nil
}
