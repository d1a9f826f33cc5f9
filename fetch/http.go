package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"rental-finder/utils"
)

// maxBodyBytes caps how much of a page is read.
const maxBodyBytes = 8 << 20

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return http.StatusText(e.code)
}

// HTTPFetcher downloads pages with a plain HTTP GET. Server errors, 429 and
// transport failures are retried; other 4xx responses are not.
type HTTPFetcher struct {
	client *http.Client
	retry  *utils.RetryConfig
	logger *utils.Logger
}

// NewHTTPFetcher returns a fetcher whose single attempts time out after
// timeout.
func NewHTTPFetcher(timeout time.Duration, retry *utils.RetryConfig, logger *utils.Logger) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{Timeout: timeout},
		retry:  retry,
		logger: logger,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var body []byte

	err := f.retry.Do(ctx, "fetch-page", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return utils.Permanent(eris.Wrap(err, "build request"))
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml")
		req.Header.Set("Accept-Language", "en-CA,en;q=0.9")

		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			se := &statusError{code: resp.StatusCode}
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return se
			}
			return utils.Permanent(se)
		}

		b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return eris.Wrap(err, "read body")
		}
		body = b
		return nil
	})
	if err != nil {
		fe := &FetchError{URL: url, Err: err}
		var se *statusError
		if errors.As(err, &se) {
			fe.StatusCode = se.code
		}
		return nil, fe
	}

	f.logger.Debug("[fetch] %s (%d bytes)", url, len(body))
	return body, nil
}
