// scraper/district_client.go
package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gewnthar/areasync/config"
	"github.com/gewnthar/areasync/models"
	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
)

// StatusInvalidID is what the district service answers for an id it does not know.
const StatusInvalidID = 363

// ErrRetriesExhausted means every attempt for a request failed. It aborts the run.
var ErrRetriesExhausted = errors.New("district api retries exhausted")

// HTTPClient allows injecting a fake transport in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type districtResponse struct {
	Status  *int                `json:"status"`
	Message string              `json:"message"`
	Result  [][]models.AreaItem `json:"result"`
}

// DistrictClient fetches one node's children from the district lookup service.
// It does not rate limit; callers space out their calls.
type DistrictClient struct {
	BaseURL   string
	Key       string
	Retries   int
	RetryWait time.Duration

	HTTP HTTPClient
	Log  logrus.FieldLogger
	// Backoff paces retries; tests swap it to avoid real waits.
	Backoff func(wait time.Duration) retry.Backoff
}

// NewDistrictClient builds a client from the api section of the config.
func NewDistrictClient(cfg config.APIConfig, log logrus.FieldLogger) *DistrictClient {
	return &DistrictClient{
		BaseURL:   cfg.BaseURL,
		Key:       cfg.Key,
		Retries:   cfg.Retry,
		RetryWait: cfg.RetryWait,
		HTTP:      &http.Client{Timeout: cfg.Timeout},
		Log:       log,
		Backoff:   ConstantBackoff,
	}
}

// ConstantBackoff waits the same time between attempts. A zero wait retries at once.
func ConstantBackoff(wait time.Duration) retry.Backoff {
	if wait <= 0 {
		return retry.BackoffFunc(func() (time.Duration, bool) { return 0, false })
	}
	return retry.NewConstant(wait)
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// FetchChildren returns the children of parentID in source order. An empty
// parentID asks for the top level. An unknown id yields an empty slice.
func (c *DistrictClient) FetchChildren(ctx context.Context, parentID string) ([]models.AreaItem, error) {
	retries := c.Retries
	if retries < 1 {
		retries = 1
	}
	newBackoff := c.Backoff
	if newBackoff == nil {
		newBackoff = ConstantBackoff
	}
	backoff := retry.WithMaxRetries(uint64(retries-1), newBackoff(c.RetryWait))

	var (
		items   []models.AreaItem
		attempt int
	)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		log := c.Log.WithField("id", parentID)
		log.WithField("attempt", fmt.Sprintf("%d/%d", attempt, retries)).Info("Requesting district children")

		resp, err := c.fetchOnce(ctx, parentID)
		if err == nil {
			switch {
			case resp.Status == nil:
				err = errors.New("response carries no status")
			case *resp.Status == 0:
				items = []models.AreaItem{}
				if len(resp.Result) > 0 {
					items = resp.Result[0]
				}
				return nil
			case *resp.Status == StatusInvalidID:
				log.Info("Unknown district id, skipping")
				items = []models.AreaItem{}
				return nil
			default:
				err = fmt.Errorf("api returned status %d: %s", *resp.Status, resp.Message)
			}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if attempt < retries {
			log.WithError(err).Warn("Request failed, waiting to retry")
		}
		return retry.RetryableError(err)
	})
	if err == nil {
		return items, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	c.Log.WithField("id", parentID).WithError(err).
		Errorf("District request failed %d times, aborting", attempt)
	return nil, fmt.Errorf("%w: id %q after %d attempts: %w", ErrRetriesExhausted, parentID, attempt, err)
}

func (c *DistrictClient) fetchOnce(ctx context.Context, parentID string) (*districtResponse, error) {
	params := url.Values{}
	params.Set("key", c.Key)
	if parentID != "" {
		params.Set("id", parentID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		io.Copy(io.Discard, res.Body)
		return nil, fmt.Errorf("unexpected http status %d", res.StatusCode)
	}

	var body districtResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &body, nil
}
