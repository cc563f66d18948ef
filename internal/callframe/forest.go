package callframe

import (
	"fmt"
	"sort"
	"strings"
)

// GatewayProviderTool is the internal tool whose frames are kept out of the tree.
const GatewayProviderTool = "GPTScript Gateway Provider"

type SentinelPolicy string

const (
	// SentinelDropAll hides every gateway provider frame.
	SentinelDropAll SentinelPolicy = "all"
	// SentinelDropFinished hides only finished gateway provider frames and
	// keeps the running ones visible.
	SentinelDropFinished SentinelPolicy = "finished"
)

func ParseSentinelPolicy(raw string) (SentinelPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(SentinelDropAll):
		return SentinelDropAll, nil
	case string(SentinelDropFinished):
		return SentinelDropFinished, nil
	}
	return "", fmt.Errorf("unknown sentinel policy %q (want %q or %q)", raw, SentinelDropAll, SentinelDropFinished)
}

func (p SentinelPolicy) Excludes(frame CallFrame) bool {
	if frame.ToolName() != GatewayProviderTool {
		return false
	}
	if p == SentinelDropFinished {
		return frame.Finished()
	}
	return true
}

// Forest is the call tree derived from a flat frame map. It is rebuilt from
// scratch whenever the frames change.
type Forest struct {
	Roots    []string            `json:"roots"`
	Children map[string][]string `json:"children"`
}

// BuildForest groups frames by parent. Roots and every child list are ordered
// by start time; equal start times fall back to id order.
func BuildForest(frames Frames, policy SentinelPolicy) Forest {
	forest := Forest{
		Roots:    []string{},
		Children: map[string][]string{},
	}

	sorted := make([]CallFrame, 0, len(frames))
	for id, frame := range frames {
		// The map key is authoritative; lookups elsewhere go through it.
		frame.ID = id
		sorted = append(sorted, frame)
	}
	sortFrames(sorted)

	for _, frame := range sorted {
		if policy.Excludes(frame) {
			continue
		}
		if frame.ParentID == "" {
			forest.Roots = append(forest.Roots, frame.ID)
			continue
		}
		forest.Children[frame.ParentID] = append(forest.Children[frame.ParentID], frame.ID)
	}

	for parent := range forest.Children {
		sortIDs(forest.Children[parent], frames)
	}
	sortIDs(forest.Roots, frames)
	return forest
}

func (f Forest) ChildrenOf(id string) []string {
	return f.Children[id]
}

// Walk visits every node reachable from the roots in depth-first pre-order.
// A node already on the current path or already visited is skipped, so
// malformed parent links never loop. Returning false from fn prunes that
// node's subtree.
func (f Forest) Walk(fn func(id string, depth int) bool) {
	visited := map[string]bool{}
	onPath := map[string]bool{}
	var visit func(id string, depth int)
	visit = func(id string, depth int) {
		if onPath[id] || visited[id] {
			return
		}
		visited[id] = true
		if !fn(id, depth) {
			return
		}
		onPath[id] = true
		for _, child := range f.Children[id] {
			visit(child, depth+1)
		}
		delete(onPath, id)
	}
	for _, root := range f.Roots {
		visit(root, 0)
	}
}

// Unreachable lists frames that survived filtering but are never reached from
// a root, typically because their parent is missing, excluded, or cyclic.
func (f Forest) Unreachable(frames Frames, policy SentinelPolicy) []string {
	reached := map[string]bool{}
	f.Walk(func(id string, _ int) bool {
		reached[id] = true
		return true
	})
	var out []string
	for id, frame := range frames {
		if policy.Excludes(frame) || reached[id] {
			continue
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func sortFrames(frames []CallFrame) {
	sort.SliceStable(frames, func(i, j int) bool {
		if !frames[i].Start.Equal(frames[j].Start) {
			return frames[i].Start.Before(frames[j].Start)
		}
		return frames[i].ID < frames[j].ID
	})
}

func sortIDs(ids []string, frames Frames) {
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := frames[ids[i]], frames[ids[j]]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		return ids[i] < ids[j]
	})
}
