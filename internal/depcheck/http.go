package depcheck

import (
	"context"
	"io"
	"net"
	"net/http"

	"github.com/keithlinneman/linnemanlabs-monitoring/internal/health"
	"github.com/keithlinneman/linnemanlabs-monitoring/internal/xerrors"
)

// HTTPDoer is the part of *http.Client the HTTP probe needs.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// HTTP probes url with a GET. Any status below 400 counts as up. A nil client
// uses http.DefaultClient.
func HTTP(client HTTPDoer, url string) health.CheckFunc {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
		if err != nil {
			return xerrors.Wrap(err, "build request")
		}
		resp, err := client.Do(req)
		if err != nil {
			return xerrors.Wrapf(err, "GET %s", url)
		}
		defer resp.Body.Close()
		// drain a little so the connection can be reused
		_, _ = io.CopyN(io.Discard, resp.Body, 4<<10)

		if resp.StatusCode >= http.StatusBadRequest {
			return xerrors.Newf("GET %s: status %d", url, resp.StatusCode)
		}
		return nil
	}
}

// TCP probes addr by opening and closing a connection.
func TCP(addr string) health.CheckFunc {
	return func(ctx context.Context) error {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return xerrors.Wrapf(err, "dial %s", addr)
		}
		return conn.Close()
	}
}
