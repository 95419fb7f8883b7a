package playback

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"novelnest/internal/domain/story"
)

var ErrNoSource = errors.New("no source for asset")

// Fetcher streams server-relative assets.
type Fetcher interface {
	Open(ctx context.Context, ref story.AssetRef) (io.ReadCloser, error)
}

// Local opens assets from a stories directory on this machine.
type Local interface {
	Open(ref story.AssetRef) (io.ReadCloser, error)
}

// Resolver opens asset references. Paths under /stories/ are read from Local
// when it is set, other paths go through Fetcher, and anything without a
// leading slash is an inline base64 payload.
type Resolver struct {
	Fetcher Fetcher
	Local   Local
}

func (r Resolver) Open(ctx context.Context, ref story.AssetRef) (io.ReadCloser, error) {
	if ref.IsZero() {
		return nil, ErrNoSource
	}
	if !ref.IsPath() {
		return decodeInline(ref.String())
	}

	if r.Local != nil && strings.HasPrefix(ref.String(), "/stories/") {
		return r.Local.Open(ref)
	}
	if r.Fetcher == nil {
		return nil, ErrNoSource
	}
	return r.Fetcher.Open(ctx, ref)
}

func decodeInline(s string) (io.ReadCloser, error) {
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode inline asset: %w", err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}
