package imagery

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

	"marine-scan-pipeline/models"
)

// Evalscripts select the band combination per pollution target. Oil
// shows up best in true color with B04/B03/B02; floating plastic
// accumulations respond in the NIR band.
const (
	evalscriptOil = `//VERSION=3
function setup() {
  return { input: ["B04", "B03", "B02"], output: { bands: 3 } };
}
function evaluatePixel(sample) {
  return [2.5 * sample.B04, 2.5 * sample.B03, 2.5 * sample.B02];
}`

	evalscriptPlastic = `//VERSION=3
function setup() {
  return { input: ["B08", "B04", "B03"], output: { bands: 3 } };
}
function evaluatePixel(sample) {
  return [2.5 * sample.B08, 2.5 * sample.B04, 2.5 * sample.B03];
}`
)

// SentinelClient captures imagery through a Sentinel-Hub-compatible
// process API with OAuth client-credentials authentication.
type SentinelClient struct {
	tokenURL     string
	processURL   string
	clientID     string
	clientSecret string
	client       *http.Client
}

// NewSentinelClient creates a provider client with a per-call timeout.
func NewSentinelClient(tokenURL, processURL, clientID, clientSecret string, timeout time.Duration) *SentinelClient {
	return &SentinelClient{
		tokenURL:     tokenURL,
		processURL:   processURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       &http.Client{Timeout: timeout},
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Authenticate exchanges client credentials for an access token.
func (c *SentinelClient) Authenticate(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to request token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, body)
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned empty access_token")
	}
	return token.AccessToken, nil
}

type processRequest struct {
	Input  processInput  `json:"input"`
	Output processOutput `json:"output"`
	Eval   string        `json:"evalscript"`
}

type processInput struct {
	Bounds processBounds `json:"bounds"`
	Data   []processData `json:"data"`
}

type processBounds struct {
	BBox       []float64         `json:"bbox"`
	Properties map[string]string `json:"properties"`
}

type processData struct {
	Type string `json:"type"`
}

type processOutput struct {
	Width     int             `json:"width"`
	Height    int             `json:"height"`
	Responses []processFormat `json:"responses"`
}

type processFormat struct {
	Identifier string            `json:"identifier"`
	Format     map[string]string `json:"format"`
}

// Capture requests a PNG rendering of the bbox from the process API.
func (c *SentinelClient) Capture(ctx context.Context, token string, bbox models.BBox, target models.PollutionTarget) ([]byte, error) {
	evalscript := evalscriptOil
	if target == models.TargetPlastic {
		evalscript = evalscriptPlastic
	}

	reqBody := processRequest{
		Input: processInput{
			Bounds: processBounds{
				// Process API bbox order is lon/lat.
				BBox:       []float64{bbox.LonMin, bbox.LatMin, bbox.LonMax, bbox.LatMax},
				Properties: map[string]string{"crs": "http://www.opengis.net/def/crs/EPSG/0/4326"},
			},
			Data: []processData{{Type: "sentinel-2-l2a"}},
		},
		Output: processOutput{
			Width:  512,
			Height: 512,
			Responses: []processFormat{{
				Identifier: "default",
				Format:     map[string]string{"type": "image/png"},
			}},
		},
		Eval: evalscript,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal process request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.processURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create process request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "image/png")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to capture imagery: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read imagery response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("process endpoint returned status %d: %s", resp.StatusCode, body)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("process endpoint returned empty image")
	}
	return body, nil
}
