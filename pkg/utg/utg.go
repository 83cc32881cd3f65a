/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: utg.go
Description: UI transition graph discovered online during exploration. Nodes are device states
indexed by fingerprint, edges are (source, event code, destination) triples kept in an adjacency
list per source in insertion order so path queries are deterministic.
*/

package utg

import (
	"sync"
	"time"

	"github.com/kleascm/dld/pkg/event"
	"github.com/kleascm/dld/pkg/ui"
)

// Edge is one recorded transition
type Edge struct {
	Src      string      `json:"src"`
	Dst      string      `json:"dst"`
	Code     string      `json:"event_code"`
	Event    event.Event `json:"-"`
	Recorded time.Time   `json:"recorded"`
	Sequence int         `json:"sequence"`
}

// Graph is the knowledge graph of a session. It is safe for concurrent readers; writes
// happen from the exploration loop only.
type Graph struct {
	mu sync.RWMutex

	nodes     map[string]*ui.State // fingerprint -> first snapshot seen
	nodeOrder []string
	adjacency map[string][]*Edge // source fingerprint -> outgoing edges
	edgeKeys  map[edgeKey]bool
	edgeList  []*Edge
	tried     map[triedKey]bool // events that left the state unchanged

	first *ui.State
	last  *ui.State
}

type edgeKey struct {
	src, code, dst string
}

type triedKey struct {
	src, code string
}

// New creates an empty graph
func New() *Graph {
	return &Graph{
		nodes:     make(map[string]*ui.State),
		adjacency: make(map[string][]*Edge),
		edgeKeys:  make(map[edgeKey]bool),
		tried:     make(map[triedKey]bool),
	}
}

// AddTransition records that ev moved the device from oldState to newState. Nil inputs are
// ignored. An event that leaves the fingerprint unchanged creates no edge.
func (g *Graph) AddTransition(ev event.Event, oldState, newState *ui.State) {
	if ev == nil || oldState == nil || newState == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	g.addNode(oldState)
	g.addNode(newState)
	g.last = newState

	code := ev.UniqueCode()
	if oldState.StateStr == newState.StateStr {
		g.tried[triedKey{oldState.StateStr, code}] = true
		return
	}
	key := edgeKey{oldState.StateStr, code, newState.StateStr}
	if g.edgeKeys[key] {
		return
	}
	g.edgeKeys[key] = true
	edge := &Edge{
		Src:      oldState.StateStr,
		Dst:      newState.StateStr,
		Code:     code,
		Event:    ev,
		Recorded: time.Now(),
		Sequence: len(g.edgeList) + 1,
	}
	g.edgeList = append(g.edgeList, edge)
	g.adjacency[oldState.StateStr] = append(g.adjacency[oldState.StateStr], edge)
}

func (g *Graph) addNode(s *ui.State) {
	if _, ok := g.nodes[s.StateStr]; ok {
		return
	}
	g.nodes[s.StateStr] = s
	g.nodeOrder = append(g.nodeOrder, s.StateStr)
	if g.first == nil {
		g.first = s
	}
}

// IsEventExplored reports whether ev has already been tried on state
func (g *Graph) IsEventExplored(ev event.Event, state *ui.State) bool {
	if ev == nil || state == nil {
		return false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	code := ev.UniqueCode()
	if g.tried[triedKey{state.StateStr, code}] {
		return true
	}
	for _, e := range g.adjacency[state.StateStr] {
		if e.Code == code {
			return true
		}
	}
	return false
}

// IsStateReached reports whether the state is a known node
func (g *Graph) IsStateReached(state *ui.State) bool {
	if state == nil {
		return false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[state.StateStr]
	return ok
}

// IsStateExplored reports whether the state has at least one recorded outgoing edge
func (g *Graph) IsStateExplored(state *ui.State) bool {
	if state == nil {
		return false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.adjacency[state.StateStr]) > 0
}

// ReachableStates returns the states reachable from from over known edges in BFS order.
// The source itself is not included.
func (g *Graph) ReachableStates(from *ui.State) []*ui.State {
	if from == nil {
		return nil
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := map[string]bool{from.StateStr: true}
	queue := []string{from.StateStr}
	var out []*ui.State
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.adjacency[cur] {
			if visited[e.Dst] {
				continue
			}
			visited[e.Dst] = true
			out = append(out, g.nodes[e.Dst])
			queue = append(queue, e.Dst)
		}
	}
	return out
}

// EventPath returns the shortest known event sequence leading from current to target.
// Ties are broken by edge insertion order. Unknown or unreachable targets give nil.
func (g *Graph) EventPath(current, target *ui.State) []event.Event {
	if current == nil || target == nil || current.StateStr == target.StateStr {
		return nil
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	via := map[string]*Edge{}
	visited := map[string]bool{current.StateStr: true}
	queue := []string{current.StateStr}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.adjacency[cur] {
			if visited[e.Dst] {
				continue
			}
			visited[e.Dst] = true
			via[e.Dst] = e
			if e.Dst == target.StateStr {
				return unwind(via, current.StateStr, target.StateStr)
			}
			queue = append(queue, e.Dst)
		}
	}
	return nil
}

func unwind(via map[string]*Edge, from, to string) []event.Event {
	var path []event.Event
	for node := to; node != from; {
		e := via[node]
		path = append(path, e.Event)
		node = e.Src
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// Nodes returns the known states in insertion order
func (g *Graph) Nodes() []*ui.State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*ui.State, 0, len(g.nodeOrder))
	for _, fp := range g.nodeOrder {
		out = append(out, g.nodes[fp])
	}
	return out
}

// Edges returns every recorded edge in insertion order
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Edge, 0, len(g.edgeList))
	for _, e := range g.edgeList {
		out = append(out, *e)
	}
	return out
}

// NumNodes returns the number of known states
func (g *Graph) NumNodes() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// NumEdges returns the number of recorded edges
func (g *Graph) NumEdges() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edgeList)
}

// FirstState returns the first state ever recorded
func (g *Graph) FirstState() *ui.State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.first
}

// LastState returns the destination of the last recorded transition
func (g *Graph) LastState() *ui.State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.last
}
