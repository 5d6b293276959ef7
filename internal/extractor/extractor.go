// Package extractor turns schedule images into structured week data
// using the Gemini API.
package extractor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"schedule_bot/internal/schedule"
)

// Extractor recognizes a week schedule from a rendered schedule image.
type Extractor interface {
	Extract(ctx context.Context, imagePath string) (schedule.Week, error)
}

const generateEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.5-flash:generateContent"

const prompt = `Analyze this timetable image and return the result as JSON.

Rules:
1. Identify every weekday present in the table.
2. For each day list every class with its start and end time.
3. Extract the subject name and the room if one is shown.

Answer with ONLY JSON, no extra text, in this shape:
{
  "monday": [
    {"time_start": "9:00", "time_end": "9:50", "subject": "subject name", "room": "room"}
  ],
  "tuesday": [], "wednesday": [], "thursday": [],
  "friday": [], "saturday": [], "sunday": []
}

Use exactly the keys monday..sunday; an empty day is an empty array.`

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Gemini implements Extractor against the Gemini REST API.
type Gemini struct {
	hc      HTTPClient
	apiKey  string
	timeout time.Duration
	log     *slog.Logger
}

// NewGemini creates a Gemini extractor with the default HTTP client.
func NewGemini(apiKey string, log *slog.Logger) *Gemini {
	return &Gemini{
		hc:      http.DefaultClient,
		apiKey:  apiKey,
		timeout: 90 * time.Second,
		log:     log,
	}
}

// NewGeminiWith creates a Gemini extractor with a custom HTTP client
// (useful for testing).
func NewGeminiWith(hc HTTPClient, apiKey string, log *slog.Logger) *Gemini {
	return &Gemini{hc: hc, apiKey: apiKey, timeout: 90 * time.Second, log: log}
}

type generateRequest struct {
	Contents []struct {
		Parts []part `json:"parts"`
	} `json:"contents"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Extract sends the image to Gemini and validates the response into a
// Week. Any malformed model output is an extraction failure; the caller
// keeps the previously stored schedule.
func (g *Gemini) Extract(ctx context.Context, imagePath string) (schedule.Week, error) {
	if g.apiKey == "" {
		return nil, fmt.Errorf("gemini api key is not configured")
	}

	image, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}

	var reqBody generateRequest
	reqBody.Contents = make([]struct {
		Parts []part `json:"parts"`
	}, 1)
	reqBody.Contents[0].Parts = []part{
		{Text: prompt},
		{InlineData: &inlineData{
			MimeType: "image/jpeg",
			Data:     base64.StdEncoding.EncodeToString(image),
		}},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, generateEndpoint+"?key="+g.apiKey, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("gemini status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	text := StripFences(decoded.Candidates[0].Content.Parts[0].Text)
	week, err := schedule.Parse([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("parse extracted schedule: %w", err)
	}

	g.log.Debug("schedule extracted", "image", imagePath, "entries", countEntries(week))
	return week, nil
}

// StripFences removes a surrounding markdown code fence from model output.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	return strings.TrimSpace(text)
}

func countEntries(week schedule.Week) int {
	n := 0
	for _, entries := range week {
		n += len(entries)
	}
	return n
}
