/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: export.go
Description: Graph export. DOT output goes through gographviz so it can be rendered with the
usual Graphviz tooling; JSON output lists nodes and edges for offline analysis.
*/

package utg

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/awalterschulze/gographviz"

	"github.com/kleascm/dld/pkg/ui"
)

const graphName = "utg"

// ToDOT renders the graph in Graphviz DOT syntax
func (g *Graph) ToDOT() (string, error) {
	dot := gographviz.NewGraph()
	if err := dot.SetName(graphName); err != nil {
		return "", fmt.Errorf("failed to name graph: %w", err)
	}
	if err := dot.SetDir(true); err != nil {
		return "", fmt.Errorf("failed to set graph direction: %w", err)
	}

	for _, s := range g.Nodes() {
		attrs := map[string]string{
			"label": strconv.Quote(fmt.Sprintf("%s\n%s", s.ShortActivity(), shortID(s.StateStr))),
		}
		if err := dot.AddNode(graphName, strconv.Quote(s.StateStr), attrs); err != nil {
			return "", fmt.Errorf("failed to add node %s: %w", s.StateStr, err)
		}
	}
	for _, e := range g.Edges() {
		attrs := map[string]string{"label": strconv.Quote(e.Code)}
		if err := dot.AddEdge(strconv.Quote(e.Src), strconv.Quote(e.Dst), true, attrs); err != nil {
			return "", fmt.Errorf("failed to add edge %s -> %s: %w", e.Src, e.Dst, err)
		}
	}
	return dot.String(), nil
}

func shortID(fp string) string {
	if len(fp) > 8 {
		return fp[:8]
	}
	return fp
}

type jsonNode struct {
	ID       string `json:"id"`
	Activity string `json:"activity"`
	Tag      string `json:"tag"`
	Views    int    `json:"num_views"`
}

type jsonGraph struct {
	Nodes    []jsonNode `json:"nodes"`
	Edges    []Edge     `json:"edges"`
	NumNodes int        `json:"num_nodes"`
	NumEdges int        `json:"num_edges"`
	First    string     `json:"first_state,omitempty"`
}

// MarshalJSON renders nodes and edges in insertion order
func (g *Graph) MarshalJSON() ([]byte, error) {
	out := jsonGraph{Nodes: []jsonNode{}, Edges: g.Edges()}
	for _, s := range g.Nodes() {
		out.Nodes = append(out.Nodes, jsonNode{
			ID:       s.StateStr,
			Activity: s.ForegroundActivity,
			Tag:      s.Tag,
			Views:    len(s.Views),
		})
	}
	out.NumNodes = len(out.Nodes)
	out.NumEdges = len(out.Edges)
	if first := g.FirstState(); first != nil {
		out.First = first.StateStr
	}
	return json.Marshal(out)
}

// Save writes utg.dot and utg.json into dir
func (g *Graph) Save(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	dot, err := g.ToDOT()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "utg.dot"), []byte(dot), 0644); err != nil {
		return fmt.Errorf("failed to write utg.dot: %w", err)
	}
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode utg: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "utg.json"), data, 0644); err != nil {
		return fmt.Errorf("failed to write utg.json: %w", err)
	}
	return nil
}

// State returns the node with the given fingerprint, or nil
func (g *Graph) State(id string) *ui.State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id]
}
