package httputil

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestScriptedClient_RepliesInOrder(t *testing.T) {
	c := NewScriptedClient().
		Reply(http.StatusOK, `{"state":"idle"}`).
		Reply(http.StatusAccepted, `{"state":"running"}`)

	resp, err := c.Get("http://panel/api/status")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != `{"state":"idle"}` {
		t.Errorf("first reply = %d %s", resp.StatusCode, body)
	}

	resp, err = c.Post("http://panel/api/sweep/start", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("second reply status = %d, want 202", resp.StatusCode)
	}

	calls := c.Calls()
	if len(calls) != 2 {
		t.Fatalf("got %d calls, want 2", len(calls))
	}
	want := Call{Method: http.MethodPost, URL: "http://panel/api/sweep/start", ContentType: "application/json", Body: `{}`}
	if calls[1] != want {
		t.Errorf("calls[1] = %+v, want %+v", calls[1], want)
	}
}

func TestScriptedClient_Exhausted(t *testing.T) {
	c := NewScriptedClient()
	if _, err := c.Get("http://panel/api/status"); err == nil {
		t.Error("expected error with an empty script")
	}
	if n := len(c.Calls()); n != 1 {
		t.Errorf("got %d calls, want 1", n)
	}
}

func TestScriptedClient_Fail(t *testing.T) {
	boom := errors.New("connection refused")
	c := NewScriptedClient().Fail(boom)
	if _, err := c.Post("http://panel/api/sweep/abort", "application/json", nil); !errors.Is(err, boom) {
		t.Errorf("Post() error = %v, want %v", err, boom)
	}
}

func TestDecodeJSON(t *testing.T) {
	c := NewScriptedClient().
		Reply(http.StatusOK, `{"state":"idle"}`).
		Reply(http.StatusConflict, `{"error":"sweep already in progress"}`).
		Reply(http.StatusBadGateway, "plain failure\n").
		Reply(http.StatusOK, `{"state":`)

	var got struct {
		State string `json:"state"`
	}
	resp, err := c.Get("http://panel/api/status")
	if err != nil {
		t.Fatal(err)
	}
	if err := DecodeJSON(resp, &got); err != nil {
		t.Fatalf("DecodeJSON() error = %v", err)
	}
	if got.State != "idle" {
		t.Errorf("state = %q, want idle", got.State)
	}

	resp, _ = c.Get("http://panel/api/sweep/start")
	err = DecodeJSON(resp, nil)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusConflict || se.Message != "sweep already in progress" {
		t.Errorf("DecodeJSON() error = %v, want 409 StatusError", err)
	}

	resp, _ = c.Get("http://panel/api/sweep/start")
	if err := DecodeJSON(resp, nil); err == nil || err.Error() != "http 502: plain failure" {
		t.Errorf("DecodeJSON() error = %v", err)
	}

	resp, _ = c.Get("http://panel/api/status")
	if err := DecodeJSON(resp, &got); err == nil {
		t.Error("expected error for truncated JSON")
	}
}

func TestStatusError_NoMessage(t *testing.T) {
	err := &StatusError{Code: http.StatusNotFound}
	if err.Error() != "http 404" {
		t.Errorf("Error() = %q", err.Error())
	}
}
