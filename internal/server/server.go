package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"novelnest/internal/domain/story"
	"novelnest/internal/story/generator"
	"novelnest/internal/story/music"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// SceneGenerator creates and continues stories.
type SceneGenerator interface {
	Start(ctx context.Context, setting string, images []string) (*story.Story, error)
	Next(ctx context.Context, storyID string, history []story.Turn, choice string, images []string) (story.Scene, error)
}

// MusicService resolves the single music track of a story.
type MusicService interface {
	RequestMusic(ctx context.Context, storyID, style, title string) (music.Result, error)
	RawStatus(ctx context.Context, taskID string) (json.RawMessage, error)
}

// ImageService renders images on demand.
type ImageService interface {
	GenerateStandaloneImage(ctx context.Context, prompt string) (*generator.Image, error)
}

// StoryLister reads recorded stories.
type StoryLister interface {
	ListStories(ctx context.Context) ([]*story.Story, error)
}

// Options wires the server. A nil Generator disables creator mode.
type Options struct {
	Generator  SceneGenerator
	Music      MusicService
	Images     ImageService
	Stories    StoryLister
	StoriesDir string
	PublicDir  string
}

type Server struct {
	generator  SceneGenerator
	music      MusicService
	images     ImageService
	stories    StoryLister
	storiesDir string
	publicDir  string
	validate   *validator.Validate
}

func New(opts Options) *Server {
	return &Server{
		generator:  opts.Generator,
		music:      opts.Music,
		images:     opts.Images,
		stories:    opts.Stories,
		storiesDir: opts.StoriesDir,
		publicDir:  opts.PublicDir,
		validate:   newValidator(),
	}
}

// CreatorMode reports whether new content can be generated.
func (s *Server) CreatorMode() bool {
	return s.generator != nil
}

// Handler returns the routed API with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/start", s.handleStart)
	mux.HandleFunc("POST /api/next", s.handleNext)
	mux.HandleFunc("GET /api/stories", s.handleStories)
	mux.HandleFunc("POST /api/music", s.handleMusic)
	mux.HandleFunc("GET /api/music/status", s.handleMusicStatus)
	mux.HandleFunc("POST /generate-image", s.handleGenerateImage)

	if s.storiesDir != "" {
		mux.Handle("GET /stories/", http.StripPrefix("/stories/", http.FileServer(http.Dir(s.storiesDir))))
	}
	if s.publicDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(s.publicDir)))
	}
	return withRequestLogging(mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithFields(logrus.Fields{
			"addr":         addr,
			"creator_mode": s.CreatorMode(),
		}).Info("Server running")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logrus.Info("Shutting down server")
		return srv.Shutdown(shutdownCtx)
	}
}

type errorResponse struct {
	Error string          `json:"error"`
	Raw   json.RawMessage `json:"raw,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("Error writing response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
