package llm

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Ahabibm4/chatbot/pkg/clients"
)

const retryBaseDelay = 200 * time.Millisecond

// upstream is the pooled client and retry/breaker policy one provider uses.
type upstream struct {
	client *http.Client
	retry  clients.RetryConfig
}

func newUpstream(name string, timeout time.Duration) upstream {
	return upstream{
		client: clients.NewHTTPClient(timeout),
		retry:  clients.UpstreamRetryConfig(name, retryBaseDelay, nil),
	}
}

// postJSON sends payload through clients.DoWithRetry. A 5xx that survives
// the retries, or an open breaker, comes back as an error.
func (u upstream) postJSON(ctx context.Context, endpoint string, payload []byte, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	return clients.DoWithRetry(ctx, u.client, req, u.retry)
}
