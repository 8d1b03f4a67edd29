package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/rbright/boltd/internal/message"
)

// Client is a minimal session client used by the CLI and tests.
type Client struct {
	conn    net.Conn
	reader  *bufio.Reader
	timeout time.Duration
}

// Dial connects to a server. timeout bounds every later Send and Receive.
func Dial(ctx context.Context, network, address string, timeout time.Duration) (*Client, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s %s", network, address)
	}
	return &Client{conn: conn, reader: bufio.NewReader(conn), timeout: timeout}, nil
}

// Send writes one request.
func (c *Client) Send(req message.Request) error {
	line, err := message.Encode(req)
	if err != nil {
		return err
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return errors.Wrap(err, "set write deadline")
	}
	if _, err := c.conn.Write(append(line, '\n')); err != nil {
		return errors.Wrap(err, "write request")
	}
	return nil
}

// Receive reads one response.
func (c *Client) Receive() (Response, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return Response{}, errors.Wrap(err, "set read deadline")
	}
	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return Response{}, errors.Wrap(err, "read response")
	}
	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return Response{}, errors.Wrap(err, "decode response")
	}
	return resp, nil
}

// Roundtrip sends req and collects responses up to and including its
// summary. Records precede the summary in the returned slice.
func (c *Client) Roundtrip(req message.Request) ([]Response, error) {
	if err := c.Send(req); err != nil {
		return nil, err
	}
	var out []Response
	for {
		resp, err := c.Receive()
		if err != nil {
			return out, err
		}
		out = append(out, resp)
		if resp.Summary() {
			return out, nil
		}
	}
}

// Close closes the connection.
func (c *Client) Close() error { return c.conn.Close() }
