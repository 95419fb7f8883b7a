package music

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultSunoBaseURL = "https://api.sunoapi.org"
	DefaultSunoModel   = "V4_5ALL"
)

var ErrNoTaskID = errors.New("provider returned no task id")

// Track is a finished generation. AudioURL is empty when the provider
// reported success without a usable location.
type Track struct {
	AudioURL string
}

// Provider runs music generation jobs.
type Provider interface {
	Start(ctx context.Context, style, title string) (string, error)
	Check(ctx context.Context, taskID string) (Outcome[Track], error)
	Raw(ctx context.Context, taskID string) (json.RawMessage, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// SunoClient talks to the Suno generation API.
type SunoClient struct {
	apiKey      string
	baseURL     string
	model       string
	callbackURL string
	httpClient  *http.Client
}

func NewSunoClient(apiKey, baseURL, model string) *SunoClient {
	if baseURL == "" {
		baseURL = DefaultSunoBaseURL
	}
	if model == "" {
		model = DefaultSunoModel
	}
	return &SunoClient{
		apiKey:      apiKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		callbackURL: "https://example.com/callback",
		httpClient:  &http.Client{Timeout: 60 * time.Second},
	}
}

type sunoGenerateRequest struct {
	Prompt       string `json:"prompt"`
	Style        string `json:"style"`
	Title        string `json:"title"`
	Model        string `json:"model"`
	CustomMode   bool   `json:"customMode"`
	Instrumental bool   `json:"instrumental"`
	CallBackURL  string `json:"callBackUrl"`
}

type sunoEnvelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type sunoTrack struct {
	AudioURL    string `json:"audioUrl"`
	URL         string `json:"url"`
	DownloadURL string `json:"downloadUrl"`
}

func (t sunoTrack) location() string {
	switch {
	case t.AudioURL != "":
		return t.AudioURL
	case t.URL != "":
		return t.URL
	default:
		return t.DownloadURL
	}
}

type sunoRecord struct {
	TaskID   string `json:"taskId"`
	Status   string `json:"status"`
	Response *struct {
		SunoData []sunoTrack `json:"sunoData"`
	} `json:"response"`
	Records []sunoTrack `json:"records"`
}

func (c *SunoClient) do(ctx context.Context, method, url string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("suno API error: %s - %s", resp.Status, string(data))
	}
	return data, nil
}

// Start submits an instrumental generation and returns its task id.
func (c *SunoClient) Start(ctx context.Context, style, title string) (string, error) {
	logrus.WithFields(logrus.Fields{
		"style": style,
		"title": title,
	}).Info("Generating music")

	data, err := c.do(ctx, http.MethodPost, c.baseURL+"/api/v1/generate", sunoGenerateRequest{
		Style:        style,
		Title:        title,
		Model:        c.model,
		CustomMode:   true,
		Instrumental: true,
		CallBackURL:  c.callbackURL,
	})
	if err != nil {
		return "", fmt.Errorf("starting music generation: %w", err)
	}

	var env sunoEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("decode error: %w", err)
	}
	var started struct {
		TaskID string `json:"taskId"`
	}
	if len(env.Data) == 0 || json.Unmarshal(env.Data, &started) != nil || started.TaskID == "" {
		return "", fmt.Errorf("%w: %s", ErrNoTaskID, string(data))
	}

	logrus.WithField("task", started.TaskID).Info("Music generation started")
	return started.TaskID, nil
}

func (c *SunoClient) Raw(ctx context.Context, taskID string) (json.RawMessage, error) {
	url := fmt.Sprintf("%s/api/v1/generate/record-info?taskId=%s", c.baseURL, taskID)
	data, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

// Check maps the provider's task status onto an Outcome.
func (c *SunoClient) Check(ctx context.Context, taskID string) (Outcome[Track], error) {
	raw, err := c.Raw(ctx, taskID)
	if err != nil {
		return Outcome[Track]{}, err
	}
	return parseRecord(raw)
}

func parseRecord(raw json.RawMessage) (Outcome[Track], error) {
	var env sunoEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Outcome[Track]{}, fmt.Errorf("decode error: %w", err)
	}

	// some responses are not wrapped in data
	payload := env.Data
	if len(payload) == 0 || string(payload) == "null" {
		payload = raw
	}

	var rec sunoRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return Outcome[Track]{}, fmt.Errorf("decode error: %w", err)
	}

	switch rec.Status {
	case "SUCCESS", "FIRST_SUCCESS":
		tracks := rec.Records
		if rec.Response != nil && len(rec.Response.SunoData) > 0 {
			tracks = rec.Response.SunoData
		}
		out := Outcome[Track]{Status: StatusSucceeded, Raw: payload}
		if len(tracks) > 0 {
			out.Result.AudioURL = tracks[0].location()
		}
		return out, nil
	case "FAILED", "ERROR":
		return Outcome[Track]{Status: StatusFailed, Raw: payload}, nil
	default:
		return Outcome[Track]{Status: StatusPending, Raw: payload}, nil
	}
}

func (c *SunoClient) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed: %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}
