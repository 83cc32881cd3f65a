/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: policy.go
Description: Policy names and the factory used by the CLI to build a policy from configuration.
*/

package policy

import (
	"fmt"
	"sort"
)

// Policy names
const (
	NameNaiveDFS  = "dfs_naive"
	NameNaiveBFS  = "bfs_naive"
	NameGreedyDFS = "dfs_greedy"
	NameGreedyBFS = "bfs_greedy"
	NameReplay    = "replay"
	NameManual    = "manual"
	NameNone      = "none"
	NameDataLoss  = "data_loss"
)

// Options carry the policy-specific settings of the factory
type Options struct {
	ReplayDir string
	Ranker    Ranker
	DataLoss  DataLossOptions
}

var builders = map[string]func(*Session, Options) (Policy, error){
	NameNaiveDFS:  func(s *Session, _ Options) (Policy, error) { return NewNaivePolicy(s, DFS), nil },
	NameNaiveBFS:  func(s *Session, _ Options) (Policy, error) { return NewNaivePolicy(s, BFS), nil },
	NameGreedyDFS: func(s *Session, o Options) (Policy, error) { return NewGreedyPolicy(s, DFS, o.Ranker), nil },
	NameGreedyBFS: func(s *Session, o Options) (Policy, error) { return NewGreedyPolicy(s, BFS, o.Ranker), nil },
	NameReplay: func(s *Session, o Options) (Policy, error) {
		if o.ReplayDir == "" {
			return nil, fmt.Errorf("replay policy needs a replay directory")
		}
		return NewReplayPolicy(s, o.ReplayDir)
	},
	NameManual:   func(s *Session, _ Options) (Policy, error) { return NewManualPolicy(s), nil },
	NameNone:     func(*Session, Options) (Policy, error) { return NonePolicy{}, nil },
	NameDataLoss: func(s *Session, o Options) (Policy, error) { return NewDataLossPolicy(s, o.DataLoss), nil },
}

// Names returns the known policy names, sorted
func Names() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the named policy on top of a session
func New(name string, s *Session, opts Options) (Policy, error) {
	build, ok := builders[name]
	if !ok {
		return nil, fmt.Errorf("unknown policy %q, expected one of %v", name, Names())
	}
	return build(s, opts)
}
