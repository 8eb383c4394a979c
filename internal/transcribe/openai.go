package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// OpenAI calls an OpenAI-compatible audio/transcriptions endpoint and asks for
// verbose_json so segment timings come back.
type OpenAI struct {
	apiKey   string
	baseURL  string
	model    string
	language language.Tag
	client   *http.Client
}

func NewOpenAI(apiKey, baseURL, model string, lang language.Tag, timeout time.Duration) *OpenAI {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if timeout <= 0 {
		timeout = 60 * time.Minute
	}
	return &OpenAI{
		apiKey:   apiKey,
		baseURL:  strings.TrimRight(baseURL, "/"),
		model:    model,
		language: lang,
		client:   &http.Client{Timeout: timeout},
	}
}

func (*OpenAI) Name() string { return "openai" }

type openAIResp struct {
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func (o *OpenAI) Transcribe(ctx context.Context, wavPath string) (Transcript, error) {
	f, err := os.Open(wavPath)
	if err != nil {
		return Transcript{}, err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("model", o.model); err != nil {
		return Transcript{}, err
	}
	if err := mw.WriteField("response_format", "verbose_json"); err != nil {
		return Transcript{}, err
	}
	if code := languageCode(o.language); code != "" {
		if err := mw.WriteField("language", code); err != nil {
			return Transcript{}, err
		}
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(wavPath))
	if err != nil {
		return Transcript{}, err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return Transcript{}, err
	}
	if err := mw.Close(); err != nil {
		return Transcript{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return Transcript{}, err
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := o.client.Do(req)
	if err != nil {
		return Transcript{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Transcript{}, fmt.Errorf("openai http %d: %s", resp.StatusCode, string(b))
	}

	var or openAIResp
	if err := json.NewDecoder(resp.Body).Decode(&or); err != nil {
		return Transcript{}, fmt.Errorf("decode transcription response: %w", err)
	}

	tr := Transcript{Language: or.Language, Segments: make([]Segment, 0, len(or.Segments))}
	for _, s := range or.Segments {
		tr.Segments = append(tr.Segments, Segment{Text: s.Text, Start: s.Start, End: s.End})
	}
	return tr, nil
}
