// Package discovery sources candidate peer addresses from the bitnodes.io
// network snapshot, the same endpoint the teacher's observer package
// polled, trimmed to the handshake core's needs: no geolocation lookup,
// no per-country shaping, IPv4 only.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/keato/btc-observer/internal/config"
	"github.com/keato/btc-observer/internal/logger"
)

// maxFetchAttempts bounds the retry loop against bitnodes.io rate limiting.
const maxFetchAttempts = 3

// fetchSnapshot retrieves the raw node map from the snapshot endpoint,
// retrying with backoff on HTTP 429 the way the teacher's FetchNodes did.
func fetchSnapshot(ctx context.Context, url string, timeout time.Duration) (map[string][]interface{}, error) {
	client := &http.Client{Timeout: timeout}

	var lastStatus int
	for attempt := 0; attempt < maxFetchAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("http get failed: %w", err)
		}

		if resp.StatusCode == http.StatusOK {
			defer resp.Body.Close()
			var body struct {
				Nodes map[string][]interface{} `json:"nodes"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return nil, fmt.Errorf("decoding snapshot: %w", err)
			}
			return body.Nodes, nil
		}

		lastStatus = resp.StatusCode
		resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			backoff := time.Duration(attempt+1) * 2 * time.Second
			logger.Log.Warn().Int("attempt", attempt+1).Dur("backoff", backoff).Msg("rate limited by bitnodes, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue
		}
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return nil, fmt.Errorf("failed after %d attempts, last status %d", maxFetchAttempts, lastStatus)
}

// isCandidate reports whether addr is a usable dialing target: a
// resolvable IPv4 literal, not a .onion hidden-service name.
func isCandidate(host string) bool {
	if strings.HasSuffix(host, ".onion") {
		return false
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.To4() != nil
}

// Candidates returns a lazy sequence of "host:port" strings sourced from
// the bitnodes.io snapshot. The HTTP fetch happens once, on the first
// pull from the sequence; ranging stops early (a consumer breaking out
// of the loop) leaves the remaining candidates unvisited, at no extra
// cost.
func Candidates(ctx context.Context, cfg config.DiscoveryConfig) iter.Seq[string] {
	return func(yield func(string) bool) {
		nodes, err := fetchSnapshot(ctx, cfg.SnapshotURL, cfg.FetchTimeout)
		if err != nil {
			logger.Log.Error().Err(err).Msg("fetching peer snapshot")
			return
		}

		for addrPort := range nodes {
			if strings.HasPrefix(addrPort, "[") {
				continue // skip IPv6 literals, bracketed in the snapshot keys
			}
			host, _, ok := strings.Cut(addrPort, ":")
			if !ok {
				continue
			}
			if !isCandidate(host) {
				continue
			}
			if !yield(addrPort) {
				return
			}
		}
	}
}
