package generator

import (
	"bytes"
	"context"
	"encoding/base64"
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
	DefaultGeminiBaseURL   = "https://generativelanguage.googleapis.com"
	DefaultTextModel       = "gemini-3-flash-preview"
	DefaultImageModel      = "gemini-3-pro-image-preview"
	DefaultStandaloneModel = "imagen-4.0-generate-001"
)

var (
	ErrNoImage      = errors.New("no image generated")
	ErrInvalidImage = errors.New("invalid image data")
)

// Image is raw image data with its mime type.
type Image struct {
	MimeType string
	Data     []byte
}

// Part is one piece of a multimodal prompt: text or inline image.
type Part struct {
	Text  string
	Image *Image
}

// GeminiClient calls the Gemini REST API.
type GeminiClient struct {
	apiKey          string
	baseURL         string
	textModel       string
	imageModel      string
	standaloneModel string
	httpClient      *http.Client
}

func NewGeminiClient(apiKey, baseURL, textModel, imageModel string) *GeminiClient {
	if baseURL == "" {
		baseURL = DefaultGeminiBaseURL
	}
	if textModel == "" {
		textModel = DefaultTextModel
	}
	if imageModel == "" {
		imageModel = DefaultImageModel
	}
	return &GeminiClient{
		apiKey:          apiKey,
		baseURL:         strings.TrimRight(baseURL, "/"),
		textModel:       textModel,
		imageModel:      imageModel,
		standaloneModel: DefaultStandaloneModel,
		httpClient:      &http.Client{Timeout: 3 * time.Minute},
	}
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiImageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
	ImageSize   string `json:"imageSize,omitempty"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string           `json:"responseModalities,omitempty"`
	ImageConfig        *geminiImageConfig `json:"imageConfig,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func toGeminiParts(parts []Part) []geminiPart {
	out := make([]geminiPart, 0, len(parts))
	for _, p := range parts {
		if p.Image != nil {
			out = append(out, geminiPart{InlineData: &geminiInlineData{
				MimeType: p.Image.MimeType,
				Data:     base64.StdEncoding.EncodeToString(p.Image.Data),
			}})
			continue
		}
		out = append(out, geminiPart{Text: p.Text})
	}
	return out
}

func (c *GeminiClient) post(ctx context.Context, model, method string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:%s", c.baseURL, model, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("gemini API error: %s - %s", resp.Status, string(msg))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode error: %w", err)
	}
	return nil
}

// GenerateText sends a multimodal prompt to the text model and returns the
// concatenated text of the first candidate.
func (c *GeminiClient) GenerateText(ctx context.Context, parts []Part) (string, error) {
	var resp geminiResponse
	err := c.post(ctx, c.textModel, "generateContent", geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: toGeminiParts(parts)}},
	}, &resp)
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 {
		return "", errors.New("gemini returned no candidates")
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String(), nil
}

// GenerateImage renders a 16:9 scene image, optionally guided by a reference image.
func (c *GeminiClient) GenerateImage(ctx context.Context, prompt string, ref *Image) (*Image, error) {
	var parts []Part
	if ref != nil {
		parts = append(parts, Part{Image: ref})
	}
	parts = append(parts, Part{Text: prompt})

	var resp geminiResponse
	err := c.post(ctx, c.imageModel, "generateContent", geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: toGeminiParts(parts)}},
		GenerationConfig: &geminiGenerationConfig{
			ResponseModalities: []string{"IMAGE"},
			ImageConfig:        &geminiImageConfig{AspectRatio: "16:9", ImageSize: "1K"},
		},
	}, &resp)
	if err != nil {
		return nil, err
	}

	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			if p.InlineData == nil {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("decode error: %w", err)
			}
			return &Image{MimeType: p.InlineData.MimeType, Data: data}, nil
		}
	}
	return nil, fmt.Errorf("gemini: %w", ErrNoImage)
}

func (c *GeminiClient) Name() string {
	return "gemini"
}

type imagenRequest struct {
	Instances  []imagenInstance `json:"instances"`
	Parameters imagenParameters `json:"parameters"`
}

type imagenInstance struct {
	Prompt string `json:"prompt"`
}

type imagenParameters struct {
	SampleCount  int    `json:"sampleCount"`
	AspectRatio  string `json:"aspectRatio"`
	AddWatermark bool   `json:"addWatermark"`
}

// GenerateStandaloneImage renders an image from a prompt alone with Imagen.
func (c *GeminiClient) GenerateStandaloneImage(ctx context.Context, prompt string) (*Image, error) {
	var resp struct {
		Predictions []struct {
			BytesBase64Encoded string `json:"bytesBase64Encoded"`
			MimeType           string `json:"mimeType"`
		} `json:"predictions"`
	}
	err := c.post(ctx, c.standaloneModel, "predict", imagenRequest{
		Instances:  []imagenInstance{{Prompt: prompt}},
		Parameters: imagenParameters{SampleCount: 1, AspectRatio: "16:9", AddWatermark: true},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Predictions) == 0 || resp.Predictions[0].BytesBase64Encoded == "" {
		return nil, ErrNoImage
	}

	p := resp.Predictions[0]
	data, err := base64.StdEncoding.DecodeString(p.BytesBase64Encoded)
	if err != nil {
		return nil, fmt.Errorf("decode error: %w", err)
	}
	mime := p.MimeType
	if mime == "" {
		mime = "image/png"
	}

	logrus.WithField("bytes", len(data)).Debug("Generated standalone image")
	return &Image{MimeType: mime, Data: data}, nil
}
