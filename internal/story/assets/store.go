package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"novelnest/internal/domain/story"

	"github.com/sirupsen/logrus"
)

const (
	// URLPrefix is where the stories directory is served from.
	URLPrefix = "/stories/"

	storyFile       = "story.json"
	musicStatusFile = "music_status.json"
	assetsDir       = "assets"
)

var (
	ErrStoryNotFound = errors.New("story not found")
	ErrInvalidPath   = errors.New("invalid path")
)

// Store persists stories and their generated media under one directory per story.
type Store struct {
	root string
	now  func() time.Time
}

// NewStore creates a store rooted at dir. The directory is created lazily on first write.
func NewStore(dir string) *Store {
	return &Store{
		root: dir,
		now:  time.Now,
	}
}

func (s *Store) Root() string {
	return s.root
}

var storyIDUnsafe = regexp.MustCompile(`[^a-zA-Z0-9]`)

// NewStoryID derives a story id from the creation time and the first
// characters of the setting.
func NewStoryID(setting string, now time.Time) string {
	prefix := []rune(setting)
	if len(prefix) > 20 {
		prefix = prefix[:20]
	}
	return fmt.Sprintf("%d_%s", now.UnixMilli(), storyIDUnsafe.ReplaceAllString(string(prefix), "_"))
}

func checkSegment(seg string) error {
	if seg == "" || seg == "." || seg == ".." ||
		strings.ContainsAny(seg, `/\`) || filepath.IsAbs(seg) {
		return fmt.Errorf("%w: %q", ErrInvalidPath, seg)
	}
	return nil
}

func (s *Store) storyDir(storyID string) (string, error) {
	if err := checkSegment(storyID); err != nil {
		return "", err
	}
	return filepath.Join(s.root, storyID), nil
}

// SaveAsset writes a generated media file and returns its server-relative reference.
func (s *Store) SaveAsset(ctx context.Context, storyID string, data []byte, ext, label string) (story.AssetRef, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir, err := s.storyDir(storyID)
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s_%d.%s", label, s.now().UnixMilli(), ext)
	if err := checkSegment(name); err != nil {
		return "", err
	}

	dir = filepath.Join(dir, assetsDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating assets directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
		return "", fmt.Errorf("writing asset %s: %w", name, err)
	}

	logrus.WithFields(logrus.Fields{
		"story": storyID,
		"asset": name,
		"bytes": len(data),
	}).Debug("Saved asset")

	return story.AssetRef(URLPrefix + path.Join(storyID, assetsDir, name)), nil
}

// Resolve maps a server-relative reference to its file on disk.
func (s *Store) Resolve(ref story.AssetRef) (string, error) {
	if !ref.IsPath() || !strings.HasPrefix(string(ref), URLPrefix) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, ref)
	}
	rel := strings.TrimPrefix(string(ref), URLPrefix)
	segs := strings.Split(rel, "/")
	for _, seg := range segs {
		if err := checkSegment(seg); err != nil {
			return "", err
		}
	}
	return filepath.Join(append([]string{s.root}, segs...)...), nil
}

// AssetExists reports whether a server-relative reference points at a file.
func (s *Store) AssetExists(ref story.AssetRef) bool {
	p, err := s.Resolve(ref)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

// Open returns the media behind a server-relative reference.
func (s *Store) Open(ref story.AssetRef) (io.ReadCloser, error) {
	p, err := s.Resolve(ref)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

func (s *Store) writeJSON(file string, v any) error {
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return fmt.Errorf("creating story directory: %w", err)
	}

	f, err := os.Create(file)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(file), err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(file), err)
	}
	return nil
}

func readJSON(file string, v any) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", filepath.Base(file), err)
	}
	return nil
}

// SaveStory writes story.json for the story.
func (s *Store) SaveStory(ctx context.Context, st *story.Story) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := s.storyDir(st.ID)
	if err != nil {
		return err
	}
	if err := s.writeJSON(filepath.Join(dir, storyFile), st); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"story":  st.ID,
		"scenes": len(st.Scenes),
	}).Info("Saved story state")
	return nil
}

// LoadStory reads story.json. A missing story yields ErrStoryNotFound.
func (s *Store) LoadStory(ctx context.Context, storyID string) (*story.Story, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := s.storyDir(storyID)
	if err != nil {
		return nil, err
	}

	var st story.Story
	if err := readJSON(filepath.Join(dir, storyFile), &st); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrStoryNotFound, storyID)
		}
		return nil, err
	}
	if st.ID == "" {
		st.ID = storyID
	}
	return &st, nil
}

func (s *Store) StoryExists(storyID string) bool {
	dir, err := s.storyDir(storyID)
	if err != nil {
		return false
	}
	_, err = os.Stat(filepath.Join(dir, storyFile))
	return err == nil
}

// ListStories loads every readable story. Unreadable entries are logged and skipped.
func (s *Store) ListStories(ctx context.Context) ([]*story.Story, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading stories directory: %w", err)
	}

	var stories []*story.Story
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		st, err := s.LoadStory(ctx, entry.Name())
		if err != nil {
			if !errors.Is(err, ErrStoryNotFound) {
				logrus.WithError(err).WithField("story", entry.Name()).Warn("Skipping unreadable story")
			}
			continue
		}
		st.ID = entry.Name()
		stories = append(stories, st)
	}
	return stories, nil
}

// LoadMusicStatus reads music_status.json. A missing or corrupt file yields an empty status.
func (s *Store) LoadMusicStatus(ctx context.Context, storyID string) (story.MusicJobStatus, error) {
	var status story.MusicJobStatus
	dir, err := s.storyDir(storyID)
	if err != nil {
		return status, err
	}

	if err := readJSON(filepath.Join(dir, musicStatusFile), &status); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logrus.WithError(err).WithField("story", storyID).Warn("Error reading music status")
		}
		return story.MusicJobStatus{}, nil
	}
	return status, nil
}

func (s *Store) SaveMusicStatus(ctx context.Context, storyID string, status story.MusicJobStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := s.storyDir(storyID)
	if err != nil {
		return err
	}
	return s.writeJSON(filepath.Join(dir, musicStatusFile), status)
}
