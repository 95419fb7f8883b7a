package music

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSunoStart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/generate", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var body sunoGenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Dark Ambient", body.Style)
		assert.Equal(t, "V4_5ALL", body.Model)
		assert.True(t, body.Instrumental)
		assert.True(t, body.CustomMode)
		assert.Empty(t, body.Prompt)

		w.Write([]byte(`{"code":200,"msg":"success","data":{"taskId":"abc"}}`))
	}))
	defer srv.Close()

	c := NewSunoClient("key", srv.URL, "")
	id, err := c.Start(context.Background(), "Dark Ambient", "Bosque")
	require.NoError(t, err)
	assert.Equal(t, "abc", id)
}

func TestSunoStartWithoutTaskID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":400,"msg":"bad","data":null}`))
	}))
	defer srv.Close()

	_, err := NewSunoClient("key", srv.URL, "").Start(context.Background(), "a", "b")
	assert.ErrorIs(t, err, ErrNoTaskID)
}

func TestParseRecord(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status Status
		url    string
	}{
		{
			name:   "pending",
			body:   `{"code":200,"data":{"status":"PENDING"}}`,
			status: StatusPending,
		},
		{
			name:   "success with sunoData",
			body:   `{"code":200,"data":{"status":"SUCCESS","response":{"sunoData":[{"audioUrl":"http://a"}]}}}`,
			status: StatusSucceeded,
			url:    "http://a",
		},
		{
			name:   "first success falls back to url",
			body:   `{"code":200,"data":{"status":"FIRST_SUCCESS","response":{"sunoData":[{"url":"http://b"}]}}}`,
			status: StatusSucceeded,
			url:    "http://b",
		},
		{
			name:   "records with downloadUrl",
			body:   `{"code":200,"data":{"status":"SUCCESS","records":[{"downloadUrl":"http://c"}]}}`,
			status: StatusSucceeded,
			url:    "http://c",
		},
		{
			name:   "success without location",
			body:   `{"code":200,"data":{"status":"SUCCESS","response":{"sunoData":[]}}}`,
			status: StatusSucceeded,
		},
		{
			name:   "unwrapped failure",
			body:   `{"status":"ERROR"}`,
			status: StatusFailed,
		},
		{
			name:   "failed",
			body:   `{"code":200,"data":{"status":"FAILED"}}`,
			status: StatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := parseRecord(json.RawMessage(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.status, out.Status)
			assert.Equal(t, tt.url, out.Result.AudioURL)
		})
	}
}

func TestSunoCheckAndDownload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/generate/record-info", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "t1", r.URL.Query().Get("taskId"))
		w.Write([]byte(`{"code":200,"data":{"status":"SUCCESS","response":{"sunoData":[{"audioUrl":"` +
			"http://" + r.Host + `/audio.mp3"}]}}}`))
	})
	mux.HandleFunc("/audio.mp3", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ID3"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewSunoClient("key", srv.URL, "")
	out, err := c.Check(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, StatusSucceeded, out.Status)

	data, err := c.Download(context.Background(), out.Result.AudioURL)
	require.NoError(t, err)
	assert.Equal(t, "ID3", string(data))
}

func TestPollerStopsAtTerminalOutcome(t *testing.T) {
	calls := 0
	p := Poller[string]{
		Interval:    time.Millisecond,
		MaxAttempts: 10,
		Check: func(ctx context.Context, taskID string) (Outcome[string], error) {
			calls++
			if calls == 3 {
				return Outcome[string]{Status: StatusSucceeded, Result: "done"}, nil
			}
			return Outcome[string]{Status: StatusPending}, nil
		},
	}

	out, err := p.Poll(context.Background(), "t")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, out.Status)
	assert.Equal(t, "done", out.Result)
	assert.Equal(t, 3, calls)
}

func TestPollerBoundedAttempts(t *testing.T) {
	calls := 0
	p := Poller[string]{
		Interval:    time.Millisecond,
		MaxAttempts: 4,
		Check: func(ctx context.Context, taskID string) (Outcome[string], error) {
			calls++
			return Outcome[string]{Status: StatusPending}, nil
		},
	}

	out, err := p.Poll(context.Background(), "t")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, out.Status)
	assert.Equal(t, 4, calls)
}

func TestPollerCheckErrorIsFailure(t *testing.T) {
	p := Poller[string]{
		Interval:    time.Millisecond,
		MaxAttempts: 4,
		Check: func(ctx context.Context, taskID string) (Outcome[string], error) {
			return Outcome[string]{}, errors.New("timeout")
		},
	}
	out, err := p.Poll(context.Background(), "t")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, out.Status)
}

func TestPollerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := Poller[string]{
		Interval:    time.Hour,
		MaxAttempts: 4,
		Check: func(ctx context.Context, taskID string) (Outcome[string], error) {
			t.Fatal("checked after cancellation")
			return Outcome[string]{}, nil
		},
	}
	_, err := p.Poll(ctx, "t")
	assert.ErrorIs(t, err, context.Canceled)
}
