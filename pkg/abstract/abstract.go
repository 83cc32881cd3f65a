/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: abstract.go
Description: AbstractState is a fingerprinted ledger over the events one screen configuration
exposes. Two device states exposing the same event list collapse to the same AbstractState.
The ledger never runs dry: once every entry is triggered it is reset as a whole.
*/

package abstract

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/kleascm/dld/pkg/event"
)

// Entry tracks one event code of an abstract state
type Entry struct {
	UniqueCode string `json:"unique_code"`
	Triggered  bool   `json:"triggered"`
}

// State is the dedup ledger of one screen configuration
type State struct {
	entries     []Entry
	fingerprint string
}

// New builds an abstract state from the actionable events of a screen. A pre-triggered
// DoubleRotation entry is appended so rotation is addressable but not picked round-robin.
func New(events []event.Event) *State {
	entries := make([]Entry, 0, len(events)+1)
	for _, ev := range events {
		entries = append(entries, Entry{UniqueCode: ev.UniqueCode()})
	}
	entries = append(entries, Entry{UniqueCode: event.NewDoubleRotationEvent().UniqueCode(), Triggered: true})
	return &State{entries: entries, fingerprint: fingerprint(entries)}
}

func fingerprint(entries []Entry) string {
	// Encoding a slice of flat structs cannot fail
	data, _ := json.Marshal(entries)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Fingerprint returns the content hash computed at construction
func (s *State) Fingerprint() string { return s.fingerprint }

// Equals compares two abstract states by fingerprint
func (s *State) Equals(other *State) bool {
	return other != nil && s.fingerprint == other.fingerprint
}

// SetTriggered marks the entry matching ev, if any
func (s *State) SetTriggered(ev event.Event) {
	code := ev.UniqueCode()
	for i := range s.entries {
		if s.entries[i].UniqueCode == code {
			s.entries[i].Triggered = true
		}
	}
}

// Exhausted reports whether every entry has been triggered
func (s *State) Exhausted() bool {
	for _, e := range s.entries {
		if !e.Triggered {
			return false
		}
	}
	return true
}

// Reset marks every entry as untriggered
func (s *State) Reset() {
	for i := range s.entries {
		s.entries[i].Triggered = false
	}
}

// UntriggeredCodes returns the codes not yet triggered. An exhausted ledger is reset first,
// so the result is never empty while the ledger has entries.
func (s *State) UntriggeredCodes() []string {
	if s.Exhausted() {
		s.Reset()
	}
	var codes []string
	for _, e := range s.entries {
		if !e.Triggered {
			codes = append(codes, e.UniqueCode)
		}
	}
	return codes
}

// AllCodes returns every code of the ledger in construction order
func (s *State) AllCodes() []string {
	codes := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		codes = append(codes, e.UniqueCode)
	}
	return codes
}

// Entries returns a copy of the ledger
func (s *State) Entries() []Entry {
	return append([]Entry(nil), s.entries...)
}
