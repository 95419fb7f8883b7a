package music

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"novelnest/internal/domain/story"

	"github.com/sirupsen/logrus"
)

const (
	DefaultStyle        = "Ambient mystery"
	DefaultTitle        = "Mystery Scene"
	DefaultPollAttempts = 30
	DefaultPollInterval = 2 * time.Second
)

var (
	ErrStoryIDRequired = errors.New("storyId is required")
	ErrDownloadFailed  = errors.New("failed to download generated music")
)

// JobFailedError reports a job the provider marked as failed.
type JobFailedError struct {
	TaskID string
	Raw    json.RawMessage
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("music generation failed for task %s", e.TaskID)
}

// Result is either Ready or Pending.
type Result interface {
	isResult()
}

// Ready carries the story's track.
type Ready struct {
	Music story.AssetRef
}

// Pending means the caller should ask again later. Info is set when the
// provider reported success without a usable audio location.
type Pending struct {
	TaskID string
	Info   json.RawMessage
}

func (Ready) isResult()   {}
func (Pending) isResult() {}

// Store is the persistence the orchestrator needs.
type Store interface {
	LoadStory(ctx context.Context, storyID string) (*story.Story, error)
	SaveStory(ctx context.Context, st *story.Story) error
	LoadMusicStatus(ctx context.Context, storyID string) (story.MusicJobStatus, error)
	SaveMusicStatus(ctx context.Context, storyID string, status story.MusicJobStatus) error
	SaveAsset(ctx context.Context, storyID string, data []byte, ext, label string) (story.AssetRef, error)
	AssetExists(ref story.AssetRef) bool
}

// Orchestrator keeps one music track per story, never running two
// generation jobs for the same story at once.
type Orchestrator struct {
	provider Provider
	store    Store
	inflight *InFlight
	poller   Poller[Track]
}

func NewOrchestrator(provider Provider, store Store, attempts int, interval time.Duration) *Orchestrator {
	if attempts <= 0 {
		attempts = DefaultPollAttempts
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Orchestrator{
		provider: provider,
		store:    store,
		inflight: NewInFlight(),
		poller: Poller[Track]{
			Check:       provider.Check,
			Interval:    interval,
			MaxAttempts: attempts,
		},
	}
}

// RequestMusic resolves the track for a story: an in-flight request wins,
// then a stored track, then an outstanding job, and only then a new job.
func (o *Orchestrator) RequestMusic(ctx context.Context, storyID, style, title string) (Result, error) {
	if storyID == "" {
		return nil, ErrStoryIDRequired
	}
	log := logrus.WithField("story", storyID)

	taskID, busy, err := o.inflight.Get(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if busy && taskID != "" {
		log.WithField("task", taskID).Debug("Music request already in flight")
		return Pending{TaskID: taskID}, nil
	}

	if ref := o.existingMusic(ctx, storyID); !ref.IsZero() {
		return Ready{Music: ref}, nil
	}

	status, err := o.store.LoadMusicStatus(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if !status.MusicPath.IsZero() && o.store.AssetExists(status.MusicPath) {
		return Ready{Music: status.MusicPath}, nil
	}

	if status.TaskID != "" {
		return o.resume(ctx, storyID, status.TaskID)
	}
	return o.start(ctx, storyID, style, title)
}

func (o *Orchestrator) existingMusic(ctx context.Context, storyID string) story.AssetRef {
	st, err := o.store.LoadStory(ctx, storyID)
	if err != nil {
		return ""
	}
	ref := st.Music()
	if ref.IsZero() || !o.store.AssetExists(ref) {
		return ""
	}
	return ref
}

func (o *Orchestrator) start(ctx context.Context, storyID, style, title string) (Result, error) {
	for !o.inflight.Reserve(storyID, "") {
		taskID, _, err := o.inflight.Get(ctx, storyID)
		if err != nil {
			return nil, err
		}
		if taskID != "" {
			return Pending{TaskID: taskID}, nil
		}
		// the owner is gone; whatever it recorded is read once we hold the slot
	}
	defer o.inflight.Release(storyID)

	// a request that finished between our first read and the reservation
	status, err := o.store.LoadMusicStatus(ctx, storyID)
	if err != nil {
		return nil, err
	}
	switch {
	case !status.MusicPath.IsZero():
		return Ready{Music: status.MusicPath}, nil
	case status.TaskID != "":
		return Pending{TaskID: status.TaskID}, nil
	}

	if style == "" {
		style = DefaultStyle
	}
	if title == "" {
		title = DefaultTitle
	}

	taskID, err := o.provider.Start(ctx, style, title)
	if err != nil {
		return nil, fmt.Errorf("failed to start music generation: %w", err)
	}
	if err := o.store.SaveMusicStatus(ctx, storyID, story.MusicJobStatus{TaskID: taskID}); err != nil {
		return nil, err
	}
	o.inflight.Set(storyID, taskID)

	logrus.WithFields(logrus.Fields{
		"story": storyID,
		"task":  taskID,
	}).Info("Music job started")
	return Pending{TaskID: taskID}, nil
}

// resume polls a job recorded by an earlier request instead of starting a new one.
func (o *Orchestrator) resume(ctx context.Context, storyID, taskID string) (Result, error) {
	if !o.inflight.Reserve(storyID, taskID) {
		return Pending{TaskID: taskID}, nil
	}
	defer o.inflight.Release(storyID)

	out, err := o.poller.Poll(ctx, taskID)
	if err != nil {
		return nil, err
	}

	switch out.Status {
	case StatusSucceeded:
		if out.Result.AudioURL == "" {
			return Pending{TaskID: taskID, Info: out.Raw}, nil
		}
		ref, err := o.finalize(ctx, storyID, taskID, out.Result.AudioURL)
		if err != nil {
			return nil, err
		}
		return Ready{Music: ref}, nil

	case StatusFailed:
		return nil, &JobFailedError{TaskID: taskID, Raw: out.Raw}

	default:
		return Pending{TaskID: taskID}, nil
	}
}

func (o *Orchestrator) finalize(ctx context.Context, storyID, taskID, url string) (story.AssetRef, error) {
	log := logrus.WithFields(logrus.Fields{
		"story": storyID,
		"task":  taskID,
	})

	data, err := o.provider.Download(ctx, url)
	if err != nil {
		log.WithError(err).Error("Error downloading finalized music")
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	ref, err := o.store.SaveAsset(ctx, storyID, data, "mp3", "music")
	if err != nil {
		return "", err
	}

	st, err := o.store.LoadStory(ctx, storyID)
	switch {
	case err != nil:
		log.WithError(err).Warn("Music saved without a story to attach it to")
	case st.SetMusic(ref):
		if err := o.store.SaveStory(ctx, st); err != nil {
			log.WithError(err).Error("Error updating story music")
		}
	}

	if err := o.store.SaveMusicStatus(ctx, storyID, story.MusicJobStatus{TaskID: taskID, MusicPath: ref}); err != nil {
		return "", err
	}

	log.WithField("music", ref).Info("Music ready")
	return ref, nil
}

// RawStatus returns the provider's task record unmodified.
func (o *Orchestrator) RawStatus(ctx context.Context, taskID string) (json.RawMessage, error) {
	return o.provider.Raw(ctx, taskID)
}
