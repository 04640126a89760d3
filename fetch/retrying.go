package fetch

import (
	"context"
	"errors"

	"regent-tracker/utils"
)

// Retrying retries transient failures of the wrapped fetcher with
// exponential back-off. Client errors are returned at once.
type Retrying struct {
	inner Fetcher
	retry *utils.RetryConfig
}

func NewRetrying(inner Fetcher, retry *utils.RetryConfig) *Retrying {
	return &Retrying{inner: inner, retry: retry}
}

func (r *Retrying) Fetch(ctx context.Context, url string) (string, error) {
	var body string
	err := r.retry.Do(ctx, "fetch "+url, func() error {
		var err error
		body, err = r.inner.Fetch(ctx, url)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return utils.Permanent(err)
		}
		var fe *Error
		if errors.As(err, &fe) && !fe.Temporary() {
			return utils.Permanent(err)
		}
		return err
	})
	if err != nil {
		return "", err
	}
	return body, nil
}
