package generator

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"novelnest/internal/domain/story"

	"github.com/sirupsen/logrus"
)

// ImageGenerator renders a scene image from a prompt.
type ImageGenerator interface {
	Name() string
	GenerateImage(ctx context.Context, prompt string, ref *Image) (*Image, error)
}

// ImageChain tries each generator in order until one succeeds.
type ImageChain []ImageGenerator

func (c ImageChain) Name() string {
	names := make([]string, len(c))
	for i, gen := range c {
		names[i] = gen.Name()
	}
	return strings.Join(names, ",")
}

func (c ImageChain) GenerateImage(ctx context.Context, prompt string, ref *Image) (*Image, error) {
	for _, gen := range c {
		img, err := gen.GenerateImage(ctx, prompt, ref)
		if err == nil {
			return img, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logrus.WithError(err).WithField("provider", gen.Name()).Warn("Image generation failed, trying next provider")
	}
	return nil, ErrNoImage
}

// SceneImage is where a scene's picture came from.
type SceneImage interface {
	isSceneImage()
}

// GeneratedImage was rendered for this scene.
type GeneratedImage struct {
	Image *Image
}

// UploadedImage reuses the player's first uploaded picture.
type UploadedImage struct {
	Ref story.AssetRef
}

// NoImage means every source failed and nothing was uploaded.
type NoImage struct{}

func (GeneratedImage) isSceneImage() {}
func (UploadedImage) isSceneImage()  {}
func (NoImage) isSceneImage()        {}

// resolveImage renders the scene picture, falling back to the upload.
func resolveImage(ctx context.Context, gen ImageGenerator, prompt string, upload *upload) SceneImage {
	var ref *Image
	if upload != nil {
		ref = &upload.image
	}

	if gen != nil && prompt != "" {
		img, err := gen.GenerateImage(ctx, prompt, ref)
		if err == nil {
			return GeneratedImage{Image: img}
		}
		logrus.WithError(err).Error("Scene image generation failed")
	}

	if upload != nil {
		return UploadedImage{Ref: upload.ref}
	}
	return NoImage{}
}

// PollinationsClient fetches images from the public Pollinations endpoint.
type PollinationsClient struct {
	baseURL    string
	httpClient *http.Client
	seed       func() int
}

func NewPollinationsClient(baseURL string) *PollinationsClient {
	if baseURL == "" {
		baseURL = "https://pollinations.ai"
	}
	return &PollinationsClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		seed:       func() int { return rand.Intn(10000) },
	}
}

func (p *PollinationsClient) Name() string {
	return "pollinations"
}

// GenerateImage ignores the reference image; the endpoint only takes a prompt.
func (p *PollinationsClient) GenerateImage(ctx context.Context, prompt string, _ *Image) (*Image, error) {
	q := url.Values{}
	q.Set("width", "1024")
	q.Set("height", "576")
	q.Set("seed", fmt.Sprint(p.seed()))
	q.Set("nologo", "true")
	q.Set("model", "flux")
	u := fmt.Sprintf("%s/p/%s?%s", p.baseURL, url.PathEscape(prompt), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pollinations request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pollinations error: %s", resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrNoImage
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "image/jpeg"
	}
	return &Image{MimeType: mime, Data: data}, nil
}

var dataURLHeader = regexp.MustCompile(`^data:(image/[\w.+-]+);base64,`)

// DecodeDataURL accepts "data:image/...;base64,..." or bare base64.
func DecodeDataURL(s string) (*Image, error) {
	mime := "image/jpeg"
	if m := dataURLHeader.FindStringSubmatch(s); m != nil {
		mime = m[1]
		s = s[len(m[0]):]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return &Image{MimeType: mime, Data: data}, nil
}

func extensionFor(mime string) string {
	switch mime {
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	default:
		return "jpg"
	}
}
