package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/johnnydevriese/glucose-agent/internal/domain"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

// GeminiClient talks to the Gemini Generative Language REST API. It
// implements both Extractor and Conversationalist.
type GeminiClient struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

var (
	_ Extractor         = (*GeminiClient)(nil)
	_ Conversationalist = (*GeminiClient)(nil)
)

// NewGeminiClient creates a Gemini client for the given model.
func NewGeminiClient(apiKey, model string) *GeminiClient {
	return &GeminiClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: geminiBaseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type generationConfig struct {
	ResponseMIMEType string `json:"responseMimeType,omitempty"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent    `json:"system_instruction,omitempty"`
	Contents          []geminiContent   `json:"contents"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// generate sends a generateContent request and returns the first candidate's text.
func (c *GeminiClient) generate(ctx context.Context, req geminiRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp geminiErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			return "", fmt.Errorf("api error %d: %s: %s", resp.StatusCode, errResp.Error.Status, errResp.Error.Message)
		}
		return "", fmt.Errorf("api error %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResp geminiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	if len(apiResp.Candidates) == 0 || len(apiResp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response content")
	}

	return apiResp.Candidates[0].Content.Parts[0].Text, nil
}

// extractionResult is the JSON shape the extraction prompt requests.
type extractionResult struct {
	Reading *struct {
		GlucoseLevel float64 `json:"glucose_level"`
		Date         string  `json:"date"`
		MealStatus   string  `json:"meal_status"`
		Notes        *string `json:"notes"`
	} `json:"reading"`
	Invalid *domain.InvalidReading `json:"invalid"`
}

// Extract asks the model for a structured reading from free-form text.
func (c *GeminiClient) Extract(ctx context.Context, text string, today domain.Date) (*domain.Reading, *domain.InvalidReading, error) {
	input := fmt.Sprintf("Reference date (today): %s\n\nUser message: %s", today, text)
	raw, err := c.generate(ctx, geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: extractionSystemPrompt}}},
		Contents:          []geminiContent{{Role: domain.RoleUser, Parts: []geminiPart{{Text: input}}}},
		GenerationConfig:  &generationConfig{ResponseMIMEType: "application/json"},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("extraction: %w", err)
	}

	reading, invalid, err := parseExtraction(raw, today)
	if err != nil {
		slog.Error("Failed to parse extraction response", "error", err, "raw", raw)
		return nil, nil, fmt.Errorf("parse extraction: %w", err)
	}
	if reading != nil {
		slog.Info("Extracted blood sugar reading",
			"glucose_level", reading.GlucoseLevel,
			"date", reading.Date.String(),
			"meal_status", reading.MealStatus)
	}
	return reading, invalid, nil
}

// parseExtraction decodes the extraction contract JSON. Models sometimes
// wrap JSON in markdown fences even when asked not to, so those are
// stripped first.
func parseExtraction(raw string, today domain.Date) (*domain.Reading, *domain.InvalidReading, error) {
	trimmed := stripFences(raw)

	var result extractionResult
	if err := json.Unmarshal([]byte(trimmed), &result); err != nil {
		return nil, nil, err
	}

	switch {
	case result.Reading != nil:
		status := domain.MealStatus(strings.ToLower(result.Reading.MealStatus))
		if !status.Valid() {
			return nil, &domain.InvalidReading{
				Reason: fmt.Sprintf("unrecognized meal status %q", result.Reading.MealStatus),
			}, nil
		}
		date := today
		if result.Reading.Date != "" {
			parsed, err := domain.ParseDate(result.Reading.Date)
			if err != nil {
				return nil, &domain.InvalidReading{
					Reason: fmt.Sprintf("unrecognized date %q", result.Reading.Date),
				}, nil
			}
			date = parsed
		}
		return &domain.Reading{
			GlucoseLevel: result.Reading.GlucoseLevel,
			Date:         date,
			MealStatus:   status,
			Notes:        result.Reading.Notes,
		}, nil, nil
	case result.Invalid != nil:
		return nil, result.Invalid, nil
	default:
		return nil, nil, fmt.Errorf("response matches neither reading nor invalid: %s", trimmed)
	}
}

func stripFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	}
	return strings.TrimSpace(trimmed)
}

// Reply continues the conversation, using the transcript for context and
// the confirmed readings for personalization.
func (c *GeminiClient) Reply(ctx context.Context, text string, transcript []domain.StoredMessage, readings []domain.Reading) (string, error) {
	system := conversationSystemPrompt
	if summary := readingsSummary(readings); summary != "" {
		system += "\n\n" + summary
	}

	contents := make([]geminiContent, 0, len(transcript)+1)
	for _, msg := range transcript {
		contents = append(contents, geminiContent{
			Role:  msg.Role,
			Parts: []geminiPart{{Text: msg.Content}},
		})
	}
	contents = append(contents, geminiContent{Role: domain.RoleUser, Parts: []geminiPart{{Text: text}}})

	reply, err := c.generate(ctx, geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: system}}},
		Contents:          contents,
	})
	if err != nil {
		return "", fmt.Errorf("conversation: %w", err)
	}
	return strings.TrimSpace(reply), nil
}

// readingsSummary condenses confirmed history into prompt context.
func readingsSummary(readings []domain.Reading) string {
	if len(readings) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "The user's recorded readings so far (%d total):\n", len(readings))
	for _, r := range readings {
		fmt.Fprintf(&b, "- %g mg/dL, %s, %s\n", r.GlucoseLevel, r.MealStatus, r.Date)
	}
	return b.String()
}
