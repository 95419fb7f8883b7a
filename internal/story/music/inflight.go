package music

import (
	"context"
	"sync"
)

type slot struct {
	taskID string
	ready  chan struct{}
}

// InFlight tracks which stories have a music request being worked on.
// Reservation is atomic, so two concurrent requests can never both own a story.
type InFlight struct {
	mu    sync.Mutex
	slots map[string]*slot

	// taken, when set, runs after a failed Reserve.
	taken func(storyID string)
}

func NewInFlight() *InFlight {
	return &InFlight{slots: make(map[string]*slot)}
}

// Reserve claims the story. taskID may be empty when the job has not been
// started yet; Set publishes it later. Returns false if the story is taken.
func (f *InFlight) Reserve(storyID, taskID string) bool {
	f.mu.Lock()
	_, held := f.slots[storyID]
	if !held {
		s := &slot{taskID: taskID, ready: make(chan struct{})}
		if taskID != "" {
			close(s.ready)
		}
		f.slots[storyID] = s
	}
	taken := f.taken
	f.mu.Unlock()

	if held && taken != nil {
		taken(storyID)
	}
	return !held
}

// Set publishes the task id of a reserved story and wakes waiters.
func (f *InFlight) Set(storyID, taskID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.slots[storyID]
	if !ok || s.taskID != "" {
		return
	}
	s.taskID = taskID
	close(s.ready)
}

// Release frees the story. Waiters still blocked in Get see an empty task id.
func (f *InFlight) Release(storyID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.slots[storyID]
	if !ok {
		return
	}
	delete(f.slots, storyID)
	if s.taskID == "" {
		close(s.ready)
	}
}

// Get reports whether the story is in flight and, once known, its task id.
// It blocks while the owner is still starting the job.
func (f *InFlight) Get(ctx context.Context, storyID string) (string, bool, error) {
	f.mu.Lock()
	s, ok := f.slots[storyID]
	f.mu.Unlock()
	if !ok {
		return "", false, nil
	}

	select {
	case <-s.ready:
	case <-ctx.Done():
		return "", true, ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return s.taskID, true, nil
}
