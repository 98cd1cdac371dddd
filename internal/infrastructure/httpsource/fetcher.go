package httpsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"xiaoer/internal/domain/fetch"
	"xiaoer/internal/errs"
	"xiaoer/internal/ports"
)

const maxPayloadBytes = 8 << 20

// Fetcher retrieves JSON payloads over HTTP. Each call carries its own
// deadline; the fetcher never blocks past it. An optional static bearer
// token covers sources behind OAuth-issued credentials.
type Fetcher struct {
	client *http.Client
}

var _ ports.RemoteSource = (*Fetcher)(nil)

func NewFetcher(bearerToken string) *Fetcher {
	client := http.DefaultClient
	if strings.TrimSpace(bearerToken) != "" {
		client = oauth2.NewClient(
			context.Background(),
			oauth2.StaticTokenSource(&oauth2.Token{AccessToken: strings.TrimSpace(bearerToken)}),
		)
	}
	return &Fetcher{client: client}
}

func (f *Fetcher) Fetch(ctx context.Context, address string, timeout time.Duration) (json.RawMessage, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err, "check context")
	}
	if strings.TrimSpace(address) == "" {
		return nil, errors.New("address is required")
	}

	fetchCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, address, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", fetch.ErrFetchFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected status %d from %s", fetch.ErrFetchFailed, resp.StatusCode, address)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, classify(err)
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: malformed JSON payload from %s", fetch.ErrFetchFailed, address)
	}

	return json.RawMessage(raw), nil
}

func classify(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", fetch.ErrFetchTimeout, err)
	}
	return fmt.Errorf("%w: %w", fetch.ErrFetchFailed, err)
}
