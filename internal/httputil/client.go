package httputil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// HTTPClient is the part of *http.Client the API client needs. Tests
// substitute a ScriptedClient.
type HTTPClient interface {
	Get(url string) (*http.Response, error)
	Post(url, contentType string, body io.Reader) (*http.Response, error)
}

var _ HTTPClient = (*http.Client)(nil)

// DecodeJSON decodes a JSON response body into v and closes it. Non-2xx
// responses are returned as errors carrying the server's error message.
func DecodeJSON(resp *http.Response, v interface{}) error {
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var body ErrorBody
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		if json.Unmarshal(data, &body) == nil && body.Error != "" {
			return &StatusError{Code: resp.StatusCode, Message: body.Error}
		}
		return &StatusError{Code: resp.StatusCode, Message: string(bytes.TrimSpace(data))}
	}
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.Code)
	}
	return fmt.Sprintf("http %d: %s", e.Code, e.Message)
}

// Reply is one canned response. A non-nil Err is returned instead of a
// response.
type Reply struct {
	Status int
	Body   string
	Err    error
}

// Call is a request seen by a ScriptedClient.
type Call struct {
	Method      string
	URL         string
	ContentType string
	Body        string
}

// ScriptedClient answers requests with queued replies, in order, and
// records every call. Once the script runs out each request fails.
type ScriptedClient struct {
	mu      sync.Mutex
	replies []Reply
	calls   []Call
}

// NewScriptedClient returns a client with an empty script.
func NewScriptedClient() *ScriptedClient {
	return &ScriptedClient{}
}

// Reply queues a response with the given status and body.
func (c *ScriptedClient) Reply(status int, body string) *ScriptedClient {
	return c.queue(Reply{Status: status, Body: body})
}

// Fail queues a transport error.
func (c *ScriptedClient) Fail(err error) *ScriptedClient {
	return c.queue(Reply{Err: err})
}

func (c *ScriptedClient) queue(r Reply) *ScriptedClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies = append(c.replies, r)
	return c
}

// Calls returns the requests seen so far.
func (c *ScriptedClient) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

func (c *ScriptedClient) Get(url string) (*http.Response, error) {
	return c.do(Call{Method: http.MethodGet, URL: url})
}

func (c *ScriptedClient) Post(url, contentType string, body io.Reader) (*http.Response, error) {
	call := Call{Method: http.MethodPost, URL: url, ContentType: contentType}
	if body != nil {
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, err
		}
		call.Body = string(data)
	}
	return c.do(call)
}

func (c *ScriptedClient) do(call Call) (*http.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
	if len(c.replies) == 0 {
		return nil, fmt.Errorf("no scripted reply for %s %s", call.Method, call.URL)
	}
	r := c.replies[0]
	c.replies = c.replies[1:]
	if r.Err != nil {
		return nil, r.Err
	}
	return &http.Response{
		StatusCode: r.Status,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(bytes.NewBufferString(r.Body)),
	}, nil
}
