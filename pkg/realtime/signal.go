package realtime

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var signalClient = &http.Client{Timeout: 15 * time.Second}

// exchangeSDP performs the offer/answer exchange with the remote speech
// model's signaling endpoint: the local session description goes up with the
// ephemeral token as bearer credential, the remote description comes back.
func exchangeSDP(ctx context.Context, baseURL, model, token, offerSDP string) (string, error) {
	endpoint := fmt.Sprintf("%s/realtime?model=%s", baseURL, url.QueryEscape(model))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(offerSDP))
	if err != nil {
		return "", fmt.Errorf("create signaling request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := signalClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("signaling exchange: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read signaling response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("signaling exchange: HTTP %d: %s", resp.StatusCode, string(body))
	}

	return string(body), nil
}
