package core

import (
	"audio-tagging/internal/core/python"
	"audio-tagging/internal/core/types"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
)

const remoteTagEndpoint = "/v1/tag"

// RemoteClassifier posts each file to an inference server. The server replies
// with the same {labels, clipwise_output} document the python script prints.
type RemoteClassifier struct {
	client *resty.Client
	topK   int
}

func NewRemoteClassifier(baseURL string, topK int) (*RemoteClassifier, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("remote classifier url is required")
	}
	return &RemoteClassifier{
		client: resty.New().SetBaseURL(baseURL).SetTimeout(5 * time.Minute),
		topK:   topK,
	}, nil
}

func (c *RemoteClassifier) Classify(ctx context.Context, cfg types.ClassifierConfig) (types.Prediction, error) {
	if _, err := os.Stat(cfg.AudioPath); err != nil {
		return types.Prediction{}, fmt.Errorf("error reading audio file: %w", err)
	}

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return types.Prediction{}, fmt.Errorf("error encoding classifier config: %w", err)
	}

	res, err := c.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetFile("file", cfg.AudioPath).
		SetFormData(map[string]string{"config": string(cfgJSON)}).
		Post(remoteTagEndpoint)
	if err != nil {
		if ctx.Err() != nil {
			return types.Prediction{}, ctx.Err()
		}
		return types.Prediction{}, fmt.Errorf("error calling inference server: %w", err)
	}

	if !res.IsSuccess() {
		slog.Debug("inference server returned error", "status_code", res.StatusCode(), "body", res.String())
		switch res.StatusCode() {
		case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusUnsupportedMediaType:
			return types.Prediction{}, fmt.Errorf("%w: %s", ErrInvalidAudio, res.String())
		case http.StatusServiceUnavailable, http.StatusInsufficientStorage, http.StatusTooManyRequests:
			return types.Prediction{}, fmt.Errorf("%w: %s", ErrResourceExhausted, res.String())
		}
		return types.Prediction{}, fmt.Errorf("inference server returned status %d: %s", res.StatusCode(), res.String())
	}

	return python.ParseOutput(res.Body(), c.topK)
}

func (c *RemoteClassifier) Release() {}
