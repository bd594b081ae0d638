package kubernetes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/grothkopp/ainb/pkg/api"
	"github.com/grothkopp/ainb/pkg/debug"
	"github.com/grothkopp/ainb/pkg/sandbox"
)

// maxReplyBytes caps how much of a runner reply body is read.
const maxReplyBytes = 8 * 1024 * 1024

// httpConn speaks the message protocol against the in-pod runner's HTTP
// endpoint. Each Send posts one job and delivers the response envelope
// into Recv asynchronously; a transport failure surfaces as a job-error
// so the caller's reply path stays uniform.
type httpConn struct {
	token   string
	baseURL string
	client  *http.Client
	release func()

	ctx    context.Context
	cancel context.CancelFunc

	wg        sync.WaitGroup
	recv      chan sandbox.Message
	closeOnce sync.Once
}

var _ sandbox.Conn = (*httpConn)(nil)

func newHTTPConn(token, baseURL string, client *http.Client, release func()) *httpConn {
	ctx, cancel := context.WithCancel(context.Background())
	return &httpConn{
		token:   token,
		baseURL: baseURL,
		client:  client,
		release: release,
		ctx:     ctx,
		cancel:  cancel,
		recv:    make(chan sandbox.Message, 16),
	}
}

func (c *httpConn) Send(ctx context.Context, msg sandbox.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.ctx.Err() != nil {
		return api.NewSandboxUnavailableError("execution context is closed")
	}
	if msg.ID == "" {
		msg.ID = api.NewMessageID()
	}
	msg.Token = c.token
	c.wg.Add(1)
	go c.roundTrip(msg)
	return nil
}

func (c *httpConn) roundTrip(msg sandbox.Message) {
	defer c.wg.Done()
	reply, err := c.post(msg)
	if err != nil {
		if c.ctx.Err() != nil {
			// The context was torn down mid-flight; nobody is listening.
			return
		}
		reply = sandbox.NewJobError(msg, fmt.Sprintf("sandbox request failed: %v", err))
	}
	if reply.Token != c.token {
		debug.Log("sandbox", "dropping reply with foreign token", "kind", string(reply.Kind))
		return
	}
	select {
	case c.recv <- reply:
	case <-c.ctx.Done():
	}
}

func (c *httpConn) post(msg sandbox.Message) (sandbox.Message, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return sandbox.Message{}, fmt.Errorf("encoding message: %w", err)
	}
	req, err := http.NewRequestWithContext(c.ctx, http.MethodPost, c.baseURL+"/job", bytes.NewReader(data))
	if err != nil {
		return sandbox.Message{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return sandbox.Message{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return sandbox.Message{}, fmt.Errorf("reading runner reply: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return sandbox.Message{}, fmt.Errorf("runner at capacity")
	}
	if resp.StatusCode != http.StatusOK {
		return sandbox.Message{}, fmt.Errorf("runner returned status %d: %s", resp.StatusCode, debug.Truncate(string(body), 200))
	}

	var reply sandbox.Message
	if err := json.Unmarshal(body, &reply); err != nil {
		return sandbox.Message{}, fmt.Errorf("decoding runner reply: %w", err)
	}
	return reply, nil
}

func (c *httpConn) Recv() <-chan sandbox.Message { return c.recv }

// Close cancels in-flight jobs and releases the claim. The receive
// channel closes once the last round trip has drained.
func (c *httpConn) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		if c.release != nil {
			c.release()
		}
		go func() {
			c.wg.Wait()
			close(c.recv)
		}()
	})
	return nil
}
