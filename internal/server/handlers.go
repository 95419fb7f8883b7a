package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"novelnest/internal/domain/library"
	"novelnest/internal/domain/story"
	"novelnest/internal/story/assets"
	"novelnest/internal/story/generator"
	"novelnest/internal/story/music"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 50 << 20

const creatorModeDisabled = "Creator mode is disabled on this server."

type startRequest struct {
	Setting string   `json:"setting" validate:"required"`
	Images  []string `json:"images" validate:"dive,required"`
}

type nextRequest struct {
	History []story.Turn `json:"history"`
	Choice  string       `json:"choice" validate:"required"`
	StoryID string       `json:"storyId" validate:"required"`
	Images  []string     `json:"images" validate:"dive,required"`
}

type musicRequest struct {
	Style   string `json:"style"`
	Title   string `json:"title"`
	StoryID string `json:"storyId" validate:"required"`
}

type imageRequest struct {
	Prompt string `json:"prompt" validate:"required"`
}

type startResponse struct {
	story.Scene
	StoryID string `json:"storyId"`
}

type musicResponse struct {
	Music   story.AssetRef  `json:"music,omitempty"`
	Pending bool            `json:"pending,omitempty"`
	TaskID  string          `json:"taskId,omitempty"`
	Info    json.RawMessage `json:"info,omitempty"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads and validates a JSON body, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("%s is required", verrs[0].Field()))
			return false
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if !s.CreatorMode() {
		writeError(w, http.StatusForbidden, creatorModeDisabled)
		return
	}
	var req startRequest
	if !s.decode(w, r, &req) {
		return
	}

	st, err := s.generator.Start(r.Context(), req.Setting, req.Images)
	if err != nil {
		if errors.Is(err, generator.ErrInvalidImage) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logFor(r).WithError(err).Error("Error generating story")
		writeError(w, http.StatusInternalServerError, "Failed to generate story")
		return
	}

	writeJSON(w, http.StatusOK, startResponse{Scene: st.Scenes[0], StoryID: st.ID})
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	if !s.CreatorMode() {
		writeError(w, http.StatusForbidden, creatorModeDisabled)
		return
	}
	var req nextRequest
	if !s.decode(w, r, &req) {
		return
	}

	scene, err := s.generator.Next(r.Context(), req.StoryID, req.History, req.Choice, req.Images)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, scene)
	case errors.Is(err, assets.ErrStoryNotFound), errors.Is(err, assets.ErrInvalidPath):
		writeError(w, http.StatusNotFound, "story not found")
	case errors.Is(err, story.ErrAlreadyAdvanced):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, generator.ErrInvalidImage):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logFor(r).WithError(err).Error("Error generating next scene")
		writeError(w, http.StatusInternalServerError, "Failed to generate next scene")
	}
}

func (s *Server) handleStories(w http.ResponseWriter, r *http.Request) {
	lib := library.Library{Stories: []library.Summary{}, CreatorMode: s.CreatorMode()}
	if s.stories != nil {
		stories, err := s.stories.ListStories(r.Context())
		if err != nil {
			logFor(r).WithError(err).Error("Error listing stories")
			writeError(w, http.StatusInternalServerError, "Failed to list stories")
			return
		}
		for _, st := range stories {
			lib.Stories = append(lib.Stories, library.NewSummary(st))
		}
		lib.SortNewestFirst()
	}
	writeJSON(w, http.StatusOK, lib)
}

func (s *Server) handleMusic(w http.ResponseWriter, r *http.Request) {
	if !s.CreatorMode() || s.music == nil {
		writeError(w, http.StatusForbidden, creatorModeDisabled)
		return
	}
	var req musicRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.music.RequestMusic(r.Context(), req.StoryID, req.Style, req.Title)
	if err != nil {
		var failed *music.JobFailedError
		switch {
		case errors.As(err, &failed):
			writeJSON(w, http.StatusInternalServerError, errorResponse{
				Error: "Music generation failed. Please retry.",
				Raw:   failed.Raw,
			})
		case errors.Is(err, music.ErrStoryIDRequired):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, music.ErrDownloadFailed):
			logFor(r).WithError(err).Error("Error downloading music")
			writeError(w, http.StatusInternalServerError, "Failed to download generated music")
		default:
			logFor(r).WithError(err).Error("Error generating music")
			writeError(w, http.StatusInternalServerError, "Failed to generate music")
		}
		return
	}

	switch res := res.(type) {
	case music.Ready:
		writeJSON(w, http.StatusOK, musicResponse{Music: res.Music})
	case music.Pending:
		status := http.StatusOK
		if len(res.Info) > 0 {
			status = http.StatusAccepted
		}
		writeJSON(w, status, musicResponse{Pending: true, TaskID: res.TaskID, Info: res.Info})
	}
}

func (s *Server) handleMusicStatus(w http.ResponseWriter, r *http.Request) {
	taskID := r.URL.Query().Get("taskId")
	if taskID == "" {
		writeError(w, http.StatusBadRequest, "taskId is required")
		return
	}
	if s.music == nil {
		writeError(w, http.StatusForbidden, creatorModeDisabled)
		return
	}

	raw, err := s.music.RawStatus(r.Context(), taskID)
	if err != nil {
		logFor(r).WithError(err).Error("Error fetching music status")
		writeError(w, http.StatusInternalServerError, "Failed to fetch task status")
		return
	}
	writeJSON(w, http.StatusOK, map[string]json.RawMessage{"raw": raw})
}

func (s *Server) handleGenerateImage(w http.ResponseWriter, r *http.Request) {
	var req imageRequest
	if !s.decode(w, r, &req) {
		return
	}
	if s.images == nil {
		writeError(w, http.StatusForbidden, creatorModeDisabled)
		return
	}

	img, err := s.images.GenerateStandaloneImage(r.Context(), req.Prompt)
	if err != nil {
		logFor(r).WithError(err).Error("Error generating image")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"image":    base64.StdEncoding.EncodeToString(img.Data),
		"mimeType": img.MimeType,
	})
}
