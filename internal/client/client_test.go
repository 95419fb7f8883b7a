package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"novelnest/internal/domain/story"
	"novelnest/internal/story/music"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartAndNext(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/start", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "un bosque", body["setting"])
		assert.Equal(t, []any{}, body["images"])
		w.Write([]byte(`{"storyId":"s1","scene_text":["hola"],"options":[{"text":"a","audio":null}]}`))
	})
	mux.HandleFunc("POST /api/next", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			StoryID string       `json:"storyId"`
			Choice  string       `json:"choice"`
			History []story.Turn `json:"history"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "s1", body.StoryID)
		assert.Equal(t, "a", body.Choice)
		assert.Len(t, body.History, 1)
		w.Write([]byte(`{"scene_text":"adiós","options":[]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL)
	scene, id, err := c.Start(context.Background(), "un bosque", nil)
	require.NoError(t, err)
	assert.Equal(t, "s1", id)
	assert.Equal(t, story.Segments{"hola"}, scene.SceneText)

	next, err := c.Next(context.Background(), id, []story.Turn{{Role: "user", Text: "a"}}, "a")
	require.NoError(t, err)
	assert.Equal(t, story.Segments{"adiós"}, next.SceneText)
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"Creator mode is disabled on this server."}`))
	}))
	defer srv.Close()

	_, _, err := New(srv.URL).Start(context.Background(), "x", nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "Creator mode is disabled on this server.", apiErr.Message)
}

func TestMusic(t *testing.T) {
	answers := []struct {
		status int
		body   string
	}{
		{http.StatusOK, `{"pending":true,"taskId":"t1"}`},
		{http.StatusAccepted, `{"pending":true,"taskId":"t1","info":{"status":"SUCCESS"}}`},
		{http.StatusOK, `{"music":"/stories/s1/assets/music_1.mp3"}`},
	}
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a := answers[calls]
		calls++
		w.WriteHeader(a.status)
		w.Write([]byte(a.body))
	}))
	defer srv.Close()

	c := New(srv.URL)
	ctx := context.Background()

	res, err := c.Music(ctx, "s1", "", "")
	require.NoError(t, err)
	assert.Equal(t, music.Pending{TaskID: "t1"}, res)

	res, err = c.Music(ctx, "s1", "", "")
	require.NoError(t, err)
	pending, ok := res.(music.Pending)
	require.True(t, ok)
	assert.JSONEq(t, `{"status":"SUCCESS"}`, string(pending.Info))

	res, err = c.Music(ctx, "s1", "", "")
	require.NoError(t, err)
	assert.Equal(t, music.Ready{Music: "/stories/s1/assets/music_1.mp3"}, res)
}

func TestLoadStoryAndOpen(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/stories/s1/story.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"title":"Bosque","scenes":[{"scene_text":["x"],"options":[],"selectedOption":"ir"}]}`))
	})
	mux.HandleFunc("/stories/s1/assets/a.mp3", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ID3"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL)
	st, err := c.LoadStory(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", st.ID)
	assert.Equal(t, "ir", st.Scenes[0].SelectedOption)

	rc, err := c.Open(context.Background(), "/stories/s1/assets/a.mp3")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "ID3", string(data))

	_, err = c.Open(context.Background(), "/stories/s1/assets/missing.mp3")
	assert.Error(t, err)

	_, err = c.Open(context.Background(), "SUQz")
	assert.Error(t, err)
}
