package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"novelnest/internal/domain/library"
	"novelnest/internal/domain/story"
	"novelnest/internal/story/music"
)

// APIError is a non-success answer from the server.
type APIError struct {
	Status  int
	Message string
	Raw     json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Status, e.Message)
}

// Client talks to a novelnest server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// generation of a scene with narration can take minutes
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var e struct {
			Error string          `json:"error"`
			Raw   json.RawMessage `json:"raw"`
		}
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(data))
		}
		return resp.StatusCode, &APIError{Status: resp.StatusCode, Message: e.Error, Raw: e.Raw}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode error: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// Start begins a new story and returns its first scene and id.
func (c *Client) Start(ctx context.Context, setting string, images []string) (story.Scene, string, error) {
	var resp struct {
		story.Scene
		StoryID string `json:"storyId"`
	}
	if images == nil {
		images = []string{}
	}
	_, err := c.do(ctx, http.MethodPost, "/api/start", map[string]any{
		"setting": setting,
		"images":  images,
	}, &resp)
	return resp.Scene, resp.StoryID, err
}

// Next sends the player's choice and returns the following scene.
func (c *Client) Next(ctx context.Context, storyID string, history []story.Turn, choice string) (story.Scene, error) {
	var scene story.Scene
	_, err := c.do(ctx, http.MethodPost, "/api/next", map[string]any{
		"storyId": storyID,
		"history": history,
		"choice":  choice,
		"images":  []string{},
	}, &scene)
	return scene, err
}

func (c *Client) Stories(ctx context.Context) (library.Library, error) {
	var lib library.Library
	_, err := c.do(ctx, http.MethodGet, "/api/stories", nil, &lib)
	return lib, err
}

// Music asks once for the story's track.
func (c *Client) Music(ctx context.Context, storyID, style, title string) (music.Result, error) {
	var resp struct {
		Music   story.AssetRef  `json:"music"`
		Pending bool            `json:"pending"`
		TaskID  string          `json:"taskId"`
		Info    json.RawMessage `json:"info"`
	}
	_, err := c.do(ctx, http.MethodPost, "/api/music", map[string]string{
		"storyId": storyID,
		"style":   style,
		"title":   title,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if !resp.Music.IsZero() {
		return music.Ready{Music: resp.Music}, nil
	}
	return music.Pending{TaskID: resp.TaskID, Info: resp.Info}, nil
}

func (c *Client) MusicStatus(ctx context.Context, taskID string) (json.RawMessage, error) {
	var resp struct {
		Raw json.RawMessage `json:"raw"`
	}
	_, err := c.do(ctx, http.MethodGet, "/api/music/status?taskId="+url.QueryEscape(taskID), nil, &resp)
	return resp.Raw, err
}

// LoadStory fetches a recorded story from the static stories directory.
func (c *Client) LoadStory(ctx context.Context, storyID string) (*story.Story, error) {
	var st story.Story
	if _, err := c.do(ctx, http.MethodGet, "/stories/"+url.PathEscape(storyID)+"/story.json", nil, &st); err != nil {
		return nil, err
	}
	if st.ID == "" {
		st.ID = storyID
	}
	return &st, nil
}

// Open streams a server-relative asset.
func (c *Client) Open(ctx context.Context, ref story.AssetRef) (io.ReadCloser, error) {
	if !ref.IsPath() {
		return nil, fmt.Errorf("not a server path: %.20q", ref)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+ref.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &APIError{Status: resp.StatusCode, Message: resp.Status}
	}
	return resp.Body, nil
}
