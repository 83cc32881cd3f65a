/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: recorder.go
Description: Event recorder. Every dispatched event is written to events/event_%06d.json next
to the tag of the state it was sent on, the layout the replay policy reads back.
*/

package explorer

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/kleascm/dld/pkg/event"
)

// Recorder writes dispatched events to a directory
type Recorder struct {
	mu    sync.Mutex
	dir   string
	count int
}

// NewRecorder creates the events directory
func NewRecorder(dir string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create events directory: %w", err)
	}
	return &Recorder{dir: dir}, nil
}

// Dir returns the events directory
func (r *Recorder) Dir() string { return r.dir }

// Count returns the number of recorded events
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Record writes the event of a tick
func (r *Recorder) Record(tick int, tag string, ev event.Event) error {
	data, err := event.MarshalRecord(tag, ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	path := filepath.Join(r.dir, fmt.Sprintf("event_%06d.json", tick))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	r.mu.Lock()
	r.count++
	r.mu.Unlock()
	return nil
}
