package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"pixelmint/pkg/config"
	"pixelmint/pkg/logger"
	"pixelmint/services/credits/internal/entity"
)

// GenerationClient performs the paid work: it asks the external image
// provider to render the requested images. The call is bounded by the
// caller's context; a timeout is treated like any other failure.
type GenerationClient interface {
	Generate(ctx context.Context, req entity.GenerationRequest) ([][]byte, error)
}

type httpGenerationClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logger.Logger
}

func NewGenerationClient(cfg *config.Config, log *logger.Logger) GenerationClient {
	return &httpGenerationClient{
		baseURL: cfg.ImageProviderURL,
		apiKey:  cfg.ImageProviderKey,
		// No client-level timeout: the orchestrator bounds each call
		// through the request context
		httpClient: &http.Client{},
		logger:     log,
	}
}

type generateImagesRequest struct {
	Prompt string `json:"prompt"`
	Count  int    `json:"n"`
	Size   string `json:"size"`
}

type generateImagesResponse struct {
	Images []string `json:"images"`
}

func (c *httpGenerationClient) Generate(ctx context.Context, genReq entity.GenerationRequest) ([][]byte, error) {
	body, err := json.Marshal(generateImagesRequest{
		Prompt: genReq.Prompt,
		Count:  genReq.Count,
		Size:   genReq.Size,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode generation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/images/generations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("Image provider returned status %d", resp.StatusCode)
		return nil, fmt.Errorf("image provider returned status %d", resp.StatusCode)
	}

	var generated generateImagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&generated); err != nil {
		return nil, fmt.Errorf("failed to decode generation response: %w", err)
	}
	if len(generated.Images) == 0 {
		return nil, fmt.Errorf("image provider returned no images")
	}

	images := make([][]byte, 0, len(generated.Images))
	for i, encoded := range generated.Images {
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("failed to decode image %d: %w", i, err)
		}
		images = append(images, data)
	}

	return images, nil
}
