package music

import (
	"context"
	"time"

	"novelnest/internal/domain/story"

	"github.com/sirupsen/logrus"
)

const (
	DefaultRetryAttempts = 80
	DefaultRetryInterval = 3 * time.Second
)

// RequestFunc asks for the story's music once.
type RequestFunc func(ctx context.Context) (Result, error)

// Await keeps asking while the music is pending, up to retries extra
// requests spaced by interval. Music is optional, so errors and exhaustion
// both end quietly with ok == false.
func Await(ctx context.Context, request RequestFunc, interval time.Duration, retries int) (story.AssetRef, bool) {
	for attempt := 0; ; attempt++ {
		res, err := request(ctx)
		if err != nil {
			logrus.WithError(err).Warn("Background music generation failed")
			return "", false
		}

		switch r := res.(type) {
		case Ready:
			return r.Music, true
		case Pending:
			if attempt >= retries {
				logrus.WithField("task", r.TaskID).Warn("Music still pending after retries, giving up")
				return "", false
			}
			logrus.WithFields(logrus.Fields{
				"task":  r.TaskID,
				"retry": attempt + 1,
			}).Debug("Music still pending")
		default:
			return "", false
		}

		select {
		case <-ctx.Done():
			return "", false
		case <-time.After(interval):
		}
	}
}
