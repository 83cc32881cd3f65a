/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: event_mutator.go
Description: Text generator for fill probes. Each editable field receives a fresh value built
from a small word list and a random number, so restored and lost input are easy to tell apart.
*/

package mobile

import (
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"
)

var fillWords = []string{"hello", "test", "foo", "bar", "sample", "value", "input"}

// TextGenerator produces input values for editable fields
type TextGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewTextGenerator creates a generator. A nil source is time-seeded.
func NewTextGenerator(rng *rand.Rand) *TextGenerator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &TextGenerator{rng: rng}
}

// Next returns a new value
func (g *TextGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fillWords[g.rng.Intn(len(fillWords))] + strconv.Itoa(g.rng.Intn(10000))
}

// escapeInput encodes text for "input text", which splits on spaces
func escapeInput(text string) string {
	var sb strings.Builder
	for _, r := range text {
		switch {
		case r == ' ':
			sb.WriteString("%s")
		case strings.ContainsRune(`()<>|;&*\~"'$`+"`", r):
			sb.WriteRune('\\')
			sb.WriteRune(r)
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
