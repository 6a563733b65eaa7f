package notify

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/strandapp/strand-service/internal/config"
	"github.com/strandapp/strand-service/internal/transport"
	"github.com/strandapp/strand-service/internal/types"
)

// HTTPSender delivers push payloads by POSTing to each target's endpoint.
// Delivery outcomes are mapped from the response status: 404/410 mean the
// subscription is permanently gone, 429 means back off, anything else
// unexpected is transient.
type HTTPSender struct {
	client *transport.Client
	opts   transport.Options
	ttl    int
}

func NewHTTPSender(client *transport.Client, cfg config.Push) *HTTPSender {
	return &HTTPSender{
		client: client,
		opts: transport.Options{
			Timeout:    time.Duration(cfg.TimeoutSeconds) * time.Second,
			MaxRetries: cfg.MaxRetries,
			RetryDelay: time.Second,
		},
		ttl: cfg.TTLSeconds,
	}
}

func (s *HTTPSender) Send(ctx context.Context, target types.PushTarget, payload []byte) Outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return OutcomeTransient
	}
	req.ContentLength = int64(len(payload))
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("TTL", strconv.Itoa(s.ttl))
	req.Header.Set("Crypto-Key", "p256ecdsa="+target.P256dhKey)
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(payload)), nil
	}

	resp, err := s.client.Do(ctx, req, s.opts)
	if err != nil {
		return OutcomeTransient
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return OutcomeDelivered
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return OutcomeExpired
	case resp.StatusCode == http.StatusTooManyRequests:
		return OutcomeRateLimited
	default:
		return OutcomeTransient
	}
}
