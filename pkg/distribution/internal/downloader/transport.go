package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/clocksmith/doppler/pkg/distribution/types"
)

// Transport is the wire-level half of the downloader: plain HTTPS GETs
// against "${baseURL}/manifest.json" and "${baseURL}/${shard.filename}".
// It never issues a Range request — a failed fetch is retried from byte
// zero, never resumed mid-body.
type Transport interface {
	FetchFile(ctx context.Context, url string) ([]byte, error)
	FetchShard(ctx context.Context, baseURL, filename string) (io.ReadCloser, int64, error)
}

type httpTransport struct {
	client *http.Client
}

// NewHTTPTransport builds a Transport over client, defaulting to
// http.DefaultClient when nil.
func NewHTTPTransport(client *http.Client) Transport {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpTransport{client: client}
}

func (t *httpTransport) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &types.CancelledError{Operation: "fetch " + url}
		}
		return nil, &types.NetworkError{Cause: err, Retryable: true}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &types.HTTPError{Status: resp.StatusCode, URL: url}
	}
	return resp, nil
}

// FetchFile retrieves url in full: used for manifest.json and the optional
// tokenizer file, both of which are small enough to buffer whole.
func (t *httpTransport) FetchFile(ctx context.Context, url string) ([]byte, error) {
	resp, err := t.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &types.NetworkError{Cause: err, Retryable: true}
	}
	return data, nil
}

// FetchShard opens a streaming GET for one shard file, returning the
// response body (caller must Close it) and the declared Content-Length,
// or -1 if the server omitted it.
func (t *httpTransport) FetchShard(ctx context.Context, baseURL, filename string) (io.ReadCloser, int64, error) {
	resp, err := t.get(ctx, baseURL+"/"+filename)
	if err != nil {
		return nil, 0, err
	}
	return resp.Body, resp.ContentLength, nil
}
