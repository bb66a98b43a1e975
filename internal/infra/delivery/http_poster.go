package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const userAgent = "subscription-reminder-bot/1.0"

// Poster sends JSON bodies to user-configured endpoints. One Poster is shared by
// every outbound HTTP channel so the rate limit covers them all.
type Poster struct {
	client  *http.Client
	limiter *rate.Limiter
	logger  *logrus.Entry
}

func NewPoster(ratePerSec float64, timeout time.Duration, logger *logrus.Entry) *Poster {
	burst := int(math.Ceil(ratePerSec))
	if burst < 1 {
		burst = 1
	}
	return &Poster{
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst),
		logger:  logger,
	}
}

// PostJSON encodes body and POSTs it to url. Non-2xx responses are errors.
func (p *Poster) PostJSON(ctx context.Context, url string, headers map[string]string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("error encoding payload: %w", err)
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("error building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("error posting to %s: %w", req.URL.Host, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status from %s: %s", req.URL.Host, resp.Status)
	}
	p.logger.WithField("host", req.URL.Host).Debug("Posted notification payload")
	return nil
}

func bearer(token string) map[string]string {
	if token == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + token}
}
