package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"marine-scan-pipeline/models"
	"marine-scan-pipeline/parser"
)

const openAIEndpoint = "https://api.openai.com/v1/chat/completions"

const promptSystem = `
You are **Marine Pollution Analyzer**, a vision-enabled expert that inspects satellite imagery
tiles of open water and coastal zones for marine pollution.

########################################
# 1. MISSION
########################################
For every input tile you MUST:

Step 1: Determine whether the tile shows probable pollution of the requested target type.
Step 2: If pollution is visible, estimate its extent, confidence and severity.
Step 3: Fill every field in the JSON schema (see § 2).
Step 4: Output a **single, valid JSON object** and nothing else.

########################################
# 2. OUTPUT SCHEMA
{
  "pollution_detected": <true | false>,
  "pollution_type":     "<oil | plastic | none>",
  "confidence_score":   <0.0-1.0>,
  "severity_level":     "<low | medium | high | critical>",
  "estimated_area_km2": <float>,
  "description":        "<1-3 sentences describing the visible evidence>",
  "affected_regions":   [{"x": <int>, "y": <int>, "width": <int>, "height": <int>}],
  "recommendations":    ["<step 1>", "<step 2>"]
}
########################################

# 3. DETECTION CALIBRATION
* Default to "pollution_detected": false under uncertainty. A wave pattern, cloud shadow,
  sun glint or algal bloom is NOT pollution.
* Oil slicks: report only contiguous dark or rainbow-sheen patches of at least 0.5 km²,
  and only with confidence of 0.7 or higher.
* Floating plastic: report only debris accumulations of at least 1 km²; a confidence of
  0.6 or higher is acceptable because plastic signatures are fainter.
* Severity bands by estimated area: below 5 km² low, 5-20 km² medium, 20-50 km² high,
  above 50 km² critical.
* When "pollution_detected" is false, set "pollution_type" to "none", "estimated_area_km2"
  to 0 and leave "affected_regions" empty.
* affected_regions are pixel rectangles inside the 512x512 tile image.
`

type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type TextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ImageURL struct {
	URL string `json:"url"`
}

type ImageContent struct {
	Type     string   `json:"type"`
	ImageURL ImageURL `json:"image_url"`
}

type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type ChatResponse struct {
	Choices []struct {
		Message struct {
			Content any `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Client analyzes tile imagery through OpenAI's vision API.
type Client struct {
	apiKey string
	model  string
	client *http.Client
}

// NewClient creates a new OpenAI vision client.
func NewClient(apiKey, model string, timeout time.Duration) *Client {
	return &Client{
		apiKey: apiKey,
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

// SourceName identifies this provider in logs.
func (c *Client) SourceName() string {
	return "ChatGPT"
}

// encodeImageToBase64 converts image bytes to a base64 data URL.
func encodeImageToBase64(imageData []byte) string {
	base64Data := base64.StdEncoding.EncodeToString(imageData)
	return fmt.Sprintf("data:image/png;base64,%s", base64Data)
}

// Analyze submits the tile image plus its geographic context and parses
// the strict result schema. A non-conforming response is an error.
func (c *Client) Analyze(ctx context.Context, imageData []byte, target models.PollutionTarget, bbox models.BBox) (*parser.AnalysisResult, error) {
	systemPrompt := TextContent{
		Type: "text",
		Text: promptSystem,
	}

	contextPrompt := TextContent{
		Type: "text",
		Text: fmt.Sprintf("Target pollution type: %s. Tile bounding box: lat %.5f..%.5f, lon %.5f..%.5f.",
			target, bbox.LatMin, bbox.LatMax, bbox.LonMin, bbox.LonMax),
	}

	imagePrompt := ImageContent{
		Type: "image_url",
		ImageURL: ImageURL{
			URL: encodeImageToBase64(imageData),
		},
	}

	reqBody := ChatRequest{
		Model: c.model,
		Messages: []Message{
			{
				Role: "system",
				Content: []any{
					systemPrompt,
				},
			},
			{
				Role: "user",
				Content: []any{
					imagePrompt,
					contextPrompt,
				},
			},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, openAIEndpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OpenAI API returned status %d: %s", resp.StatusCode, body)
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	content, ok := chatResp.Choices[0].Message.Content.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected content type in response")
	}

	return parser.ParseAnalysis(content)
}
