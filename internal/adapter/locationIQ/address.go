package locationIQ

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Temutjin2k/taxi-dispatch/internal/domain/models"
	"github.com/Temutjin2k/taxi-dispatch/internal/domain/types"
	wrap "github.com/Temutjin2k/taxi-dispatch/pkg/logger/wrapper"
)

var ErrLocationNotFound = errors.New("location not found")

// Client reverse geocodes order points through the LocationIQ API
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

func New(apiKey, baseURL string, timeout time.Duration) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type addressPayload struct {
	Address string `json:"display_name"`
}

// GetAddress returns the display name of the place at p
func (c *Client) GetAddress(ctx context.Context, p models.Point) (string, error) {
	const op = "locationIQ.GetAddress"

	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("lat", strconv.FormatFloat(p.Lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(p.Lon, 'f', 6, 64))
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/reverse?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionExternalServiceFailed)
		return "", wrap.Error(ctx, fmt.Errorf("%s: request failed: %w", op, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", ErrLocationNotFound
	case resp.StatusCode != http.StatusOK:
		ctx = wrap.WithAction(ctx, types.ActionExternalServiceFailed)
		return "", wrap.Error(ctx, fmt.Errorf("%s: unexpected response status %d", op, resp.StatusCode))
	}

	var payload addressPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", wrap.Error(ctx, fmt.Errorf("%s: decode response: %w", op, err))
	}
	if payload.Address == "" {
		return "", ErrLocationNotFound
	}

	return payload.Address, nil
}
