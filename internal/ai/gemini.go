package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const detectPrompt = `Analyze this meal and respond ONLY with a valid JSON object containing exactly these fields: 'dishTitle' (string), 'ingredientsList' (array of objects with 'name' (string), 'portion_text' (string), 'estimated_weight_g' (number), 'calories' (number), 'macros' (object with 'p', 'c', 'f' numbers in grams), optional 'notes' (string)), and 'confidence' (number between 0 and 1). Do not include any explanations, markdown formatting, or extra text.`

// GeminiProvider calls the Generative Language REST API for both food
// detection and ingredient thumbnail generation.
type GeminiProvider struct {
	BaseURL    string
	APIKey     string
	Model      string
	ImageModel string
	Client     *http.Client
}

func NewGeminiProvider(baseURL, apiKey, model, imageModel string) *GeminiProvider {
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	if imageModel == "" {
		imageModel = "gemini-2.0-flash-exp-image-generation"
	}
	return &GeminiProvider{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		Model:      model,
		ImageModel: imageModel,
		Client:     &http.Client{Timeout: 90 * time.Second},
	}
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenReq struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig map[string]any  `json:"generationConfig,omitempty"`
}

type geminiGenResp struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *GeminiProvider) generate(ctx context.Context, op, model string, req geminiGenReq) (geminiContent, error) {
	if p.Client == nil {
		return geminiContent{}, errors.New("gemini: http client is nil")
	}
	if strings.TrimSpace(p.APIKey) == "" {
		return geminiContent{}, errors.New("gemini: api key is required")
	}

	b, err := json.Marshal(req)
	if err != nil {
		return geminiContent{}, err
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		strings.TrimRight(p.BaseURL, "/"), model, p.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return geminiContent{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		return geminiContent{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return geminiContent{}, &StatusError{Op: op, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var decoded geminiGenResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return geminiContent{}, err
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return geminiContent{}, fmt.Errorf("%s: %s", op, decoded.Error.Message)
	}
	if len(decoded.Candidates) == 0 {
		return geminiContent{}, fmt.Errorf("%s: empty response", op)
	}
	return decoded.Candidates[0].Content, nil
}

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// stripFences extracts the JSON object from a model reply that may be wrapped
// in markdown fences or surrounding prose.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimSuffix(text, "```")
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
	}
	if m := jsonObjectPattern.FindString(text); m != "" {
		text = m
	}
	return strings.TrimSpace(text)
}

func (p *GeminiProvider) decodeDetection(content geminiContent) (DetectionResult, error) {
	var text string
	for _, part := range content.Parts {
		if part.Text != "" {
			text = part.Text
			break
		}
	}
	if text == "" {
		return DetectionResult{}, errors.New("detect: no text part in response")
	}

	var res DetectionResult
	if err := json.Unmarshal([]byte(stripFences(text)), &res); err != nil {
		return DetectionResult{}, fmt.Errorf("detect: parse response: %w", err)
	}
	return res, nil
}

func (p *GeminiProvider) DetectFromImage(ctx context.Context, data []byte, mimeType string) (DetectionResult, error) {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	content, err := p.generate(ctx, "detect", p.Model, geminiGenReq{
		Contents: []geminiContent{{Parts: []geminiPart{
			{Text: detectPrompt},
			{InlineData: &geminiInlineData{
				MimeType: mimeType,
				Data:     base64.StdEncoding.EncodeToString(data),
			}},
		}}},
		GenerationConfig: map[string]any{"temperature": 0.1, "topP": 0.8, "topK": 40},
	})
	if err != nil {
		return DetectionResult{}, err
	}
	return p.decodeDetection(content)
}

func (p *GeminiProvider) DetectFromText(ctx context.Context, description string) (DetectionResult, error) {
	content, err := p.generate(ctx, "detect", p.Model, geminiGenReq{
		Contents: []geminiContent{{Parts: []geminiPart{
			{Text: detectPrompt + "\n\nMeal description: " + description},
		}}},
		GenerationConfig: map[string]any{"temperature": 0.1, "topP": 0.8, "topK": 40},
	})
	if err != nil {
		return DetectionResult{}, err
	}
	return p.decodeDetection(content)
}

func (p *GeminiProvider) GenerateImage(ctx context.Context, displayName string) ([]byte, error) {
	prompt := fmt.Sprintf("A clean, appetizing studio photo of %s on a plain white background, single food item, no text.", displayName)
	content, err := p.generate(ctx, "genimage", p.ImageModel, geminiGenReq{
		Contents:         []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: map[string]any{"responseModalities": []string{"IMAGE"}},
	})
	if err != nil {
		return nil, err
	}
	for _, part := range content.Parts {
		if part.InlineData != nil && part.InlineData.Data != "" {
			return base64.StdEncoding.DecodeString(part.InlineData.Data)
		}
	}
	return nil, errors.New("genimage: no image part in response")
}
