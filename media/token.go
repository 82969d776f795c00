package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// TokenRequest is the JSON body of the media-token collaborator call.
type TokenRequest struct {
	ChannelName string `json:"channel_name"`
	UID         uint32 `json:"uid"`
	Role        string `json:"role"`
}

// TokenResponse is the collaborator's JSON reply.
type TokenResponse struct {
	Token string `json:"token"`
}

// TokenClient fetches media channel credentials from the token-issuing
// collaborator.
type TokenClient struct {
	baseURL string
	client  *http.Client
}

// NewTokenClient creates a client for the collaborator at baseURL. A nil
// http.Client selects a default with a 10 second timeout.
func NewTokenClient(baseURL string, client *http.Client) *TokenClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &TokenClient{baseURL: baseURL, client: client}
}

// Fetch requests a publisher token for the given channel and stream uid.
// Any non-2xx response or transport error is reported as
// ErrTokenFetchFailed; the caller decides whether to proceed without
// media.
func (c *TokenClient) Fetch(ctx context.Context, channelName string, uid uint32) (string, error) {
	body, err := json.Marshal(TokenRequest{
		ChannelName: channelName,
		UID:         uid,
		Role:        "publisher",
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenFetchFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/media-token", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenFetchFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":     "TokenClient.Fetch",
			"channel_name": channelName,
			"error":        err.Error(),
		}).Warn("Media token request failed")
		return "", fmt.Errorf("%w: %v", ErrTokenFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logrus.WithFields(logrus.Fields{
			"function":     "TokenClient.Fetch",
			"channel_name": channelName,
			"status":       resp.StatusCode,
		}).Warn("Media token request rejected")
		return "", fmt.Errorf("%w: status %d", ErrTokenFetchFailed, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenFetchFailed, err)
	}

	var tr TokenResponse
	if err := json.Unmarshal(data, &tr); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenFetchFailed, err)
	}
	if tr.Token == "" {
		return "", fmt.Errorf("%w: empty token", ErrTokenFetchFailed)
	}

	logrus.WithFields(logrus.Fields{
		"function":     "TokenClient.Fetch",
		"channel_name": channelName,
		"uid":          uid,
	}).Debug("Media token issued")

	return tr.Token, nil
}
