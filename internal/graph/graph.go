// Package graph derives the connection graph of a journal from shared tags
// and explicit references.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MarcoPoloResearchLab/anchor/backend/internal/journal"
)

// DefaultMaxNodes caps the node count when the caller passes zero.
const DefaultMaxNodes = 200

// UntitledLabel is the node title of entries without one.
const UntitledLabel = "Untitled"

// ErrInvalidMaxNodes indicates a negative node cap.
var ErrInvalidMaxNodes = errors.New("graph: max nodes must not be negative")

// EdgeType distinguishes user-authored references from shared-tag similarity.
type EdgeType string

const (
	EdgeTypeReference EdgeType = "reference"
	EdgeTypeTag       EdgeType = "tag"
)

// Node is one entry in the graph.
type Node struct {
	ID              string            `json:"id"`
	Title           string            `json:"title"`
	EntryType       journal.EntryType `json:"entry_type"`
	ConnectionCount int               `json:"connection_count"`
	Entry           journal.Entry     `json:"-"`
}

// Edge connects two entries. Reference edges are directed from Source to Target.
type Edge struct {
	Source string   `json:"source"`
	Target string   `json:"target"`
	Type   EdgeType `json:"type"`
	Weight int      `json:"weight"`
	Label  string   `json:"label,omitempty"`
}

// Graph is the derived node and edge set.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Stats summarizes a graph.
type Stats struct {
	Nodes          int `json:"nodes"`
	Edges          int `json:"edges"`
	ReferenceEdges int `json:"reference_edges"`
	TagEdges       int `json:"tag_edges"`
	Isolated       int `json:"isolated"`
}

// Stats counts nodes, edges by type and nodes without edges.
func (g Graph) Stats() Stats {
	stats := Stats{Nodes: len(g.Nodes), Edges: len(g.Edges)}
	touched := make(map[string]struct{}, len(g.Nodes))
	for _, edge := range g.Edges {
		switch edge.Type {
		case EdgeTypeReference:
			stats.ReferenceEdges++
		case EdgeTypeTag:
			stats.TagEdges++
		}
		touched[edge.Source] = struct{}{}
		touched[edge.Target] = struct{}{}
	}
	for _, node := range g.Nodes {
		if _, ok := touched[node.ID]; !ok {
			stats.Isolated++
		}
	}
	return stats
}

// Build derives the graph from entries, their tags and references.
//
// Archived and unsaved entries are skipped. Every pair sharing at least one
// tag gets one tag edge weighted by the shared count. Every reference whose
// endpoints both survive gets one reference edge; self and duplicate
// references are dropped. When more than maxNodes entries remain, the most
// connected are kept (stable for ties) and edges to dropped nodes are removed.
// Connection counts are computed before truncation.
func Build(entries []journal.Entry, tagIndex journal.TagIndex, references []journal.EntryReference, maxNodes int) (Graph, error) {
	if maxNodes < 0 {
		return Graph{}, fmt.Errorf("%w: %d", ErrInvalidMaxNodes, maxNodes)
	}
	if maxNodes == 0 {
		maxNodes = DefaultMaxNodes
	}

	candidates := make([]journal.Entry, 0, len(entries))
	present := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if entry.Archived || entry.IsTemporary() {
			continue
		}
		if _, dup := present[entry.ID]; dup {
			continue
		}
		present[entry.ID] = struct{}{}
		candidates = append(candidates, entry)
	}

	edges := tagEdges(candidates, tagIndex)
	edges = append(edges, referenceEdges(references, present)...)

	degree := make(map[string]int, len(candidates))
	for _, edge := range edges {
		degree[edge.Source]++
		degree[edge.Target]++
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return degree[candidates[i].ID] > degree[candidates[j].ID]
	})
	if len(candidates) > maxNodes {
		candidates = candidates[:maxNodes]
	}

	nodes := make([]Node, 0, len(candidates))
	kept := make(map[string]struct{}, len(candidates))
	for _, entry := range candidates {
		kept[entry.ID] = struct{}{}
		title := entry.Title
		if strings.TrimSpace(title) == "" {
			title = UntitledLabel
		}
		nodes = append(nodes, Node{
			ID:              entry.ID,
			Title:           title,
			EntryType:       entry.EntryType,
			ConnectionCount: degree[entry.ID],
			Entry:           entry,
		})
	}

	visible := make([]Edge, 0, len(edges))
	for _, edge := range edges {
		_, sourceKept := kept[edge.Source]
		_, targetKept := kept[edge.Target]
		if sourceKept && targetKept {
			visible = append(visible, edge)
		}
	}
	return Graph{Nodes: nodes, Edges: visible}, nil
}

func tagEdges(entries []journal.Entry, tagIndex journal.TagIndex) []Edge {
	tagSets := make([]map[string]string, len(entries))
	for index, entry := range entries {
		tags := tagIndex[entry.ID]
		set := make(map[string]string, len(tags))
		for _, tag := range tags {
			set[tag.ID] = tag.Name
		}
		tagSets[index] = set
	}

	var edges []Edge
	for i := 0; i < len(entries); i++ {
		if len(tagSets[i]) == 0 {
			continue
		}
		for j := i + 1; j < len(entries); j++ {
			if len(tagSets[j]) == 0 {
				continue
			}
			// Labels follow the later entry's tag order.
			var shared []string
			for _, tag := range tagIndex[entries[j].ID] {
				if _, ok := tagSets[i][tag.ID]; ok {
					shared = append(shared, tag.Name)
				}
			}
			if len(shared) == 0 {
				continue
			}
			edges = append(edges, Edge{
				Source: entries[i].ID,
				Target: entries[j].ID,
				Type:   EdgeTypeTag,
				Weight: len(shared),
				Label:  strings.Join(shared, ", "),
			})
		}
	}
	return edges
}

func referenceEdges(references []journal.EntryReference, present map[string]struct{}) []Edge {
	type pair struct{ from, to string }
	seen := make(map[pair]struct{}, len(references))
	edges := make([]Edge, 0, len(references))
	for _, reference := range references {
		if reference.FromEntryID == reference.ToEntryID {
			continue
		}
		if _, ok := present[reference.FromEntryID]; !ok {
			continue
		}
		if _, ok := present[reference.ToEntryID]; !ok {
			continue
		}
		key := pair{reference.FromEntryID, reference.ToEntryID}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		edges = append(edges, Edge{
			Source: reference.FromEntryID,
			Target: reference.ToEntryID,
			Type:   EdgeTypeReference,
			Weight: 1,
		})
	}
	return edges
}
