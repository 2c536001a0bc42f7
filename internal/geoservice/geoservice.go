// Package geoservice is the HTTP client for the external neighbor
// oracle the logic-layer rewriter consults when a geo-dimension cut
// uses the :neighbors operator, since sorted-key adjacency (what
// internal/cache computes for every other dimension) does not mean
// anything for geographic adjacency. Grounded on the teacher's own
// outbound-HTTP tool (internal/tools/http), narrowed from a
// fully-templated generic request to the one fixed GET endpoint this
// module needs.
package geoservice

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tesseract-olap/tesseract/internal/util"
)

// DefaultTimeout is the deadline applied to a Neighbors call when the
// caller's context carries no earlier deadline of its own.
const DefaultTimeout = 5 * time.Second

// Client calls a configured geoservice's /neighbors/<id> endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client against baseURL, applying DefaultTimeout unless
// timeout is positive.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type neighborsResponse struct {
	Neighbors []string `json:"neighbors"`
}

// Neighbors returns the neighbor member ids the geoservice reports for
// id. ctx's deadline, if any, further bounds the client's own timeout.
func (c *Client) Neighbors(ctx context.Context, id string) ([]string, error) {
	reqURL := c.baseURL + "/neighbors/" + url.PathEscape(id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, util.NewUpstreamError("building geoservice request", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, util.NewUpstreamError(fmt.Sprintf("calling geoservice for member %q", id), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, util.NewUpstreamError("reading geoservice response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, util.NewUpstreamError(
			fmt.Sprintf("geoservice returned status %d for member %q: %s", resp.StatusCode, id, string(body)), nil)
	}

	var out neighborsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, util.NewUpstreamError("decoding geoservice response", err)
	}
	return out.Neighbors, nil
}
