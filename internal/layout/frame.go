package layout

import (
	"errors"

	"github.com/MarcoPoloResearchLab/anchor/backend/internal/graph"
	"github.com/MarcoPoloResearchLab/anchor/backend/internal/journal"
)

// NodePosition is a positioned graph node.
type NodePosition struct {
	ID              string            `json:"id"`
	Title           string            `json:"title"`
	EntryType       journal.EntryType `json:"entry_type"`
	ConnectionCount int               `json:"connection_count"`
	Radius          float64           `json:"radius"`
	X               float64           `json:"x"`
	Y               float64           `json:"y"`
	Pinned          bool              `json:"pinned,omitempty"`
}

// LinkPosition is an edge with resolved endpoint coordinates.
type LinkPosition struct {
	Source string         `json:"source"`
	Target string         `json:"target"`
	Type   graph.EdgeType `json:"type"`
	Weight int            `json:"weight"`
	Label  string         `json:"label,omitempty"`
	From   Point          `json:"from"`
	To     Point          `json:"to"`
}

// Frame is the state of a simulation after a tick. A frame taken before the
// first tick carries no nodes: positions that were never computed are not
// reported.
type Frame struct {
	Tick    int            `json:"tick"`
	Alpha   float64        `json:"alpha"`
	Settled bool           `json:"settled"`
	Nodes   []NodePosition `json:"nodes"`
	Links   []LinkPosition `json:"links"`
}

// Ready reports whether the frame carries computed positions.
func (f Frame) Ready() bool {
	return f.Tick > 0 || f.Settled
}

// Position returns the position of a node in the frame.
func (f Frame) Position(id string) (Point, bool) {
	for _, node := range f.Nodes {
		if node.ID == id {
			return Point{X: node.X, Y: node.Y}, true
		}
	}
	return Point{}, false
}

// Frame snapshots the current state.
func (s *Simulation) Frame() Frame {
	frame := Frame{
		Tick:    s.ticks,
		Alpha:   s.alpha,
		Settled: s.Settled(),
		Nodes:   []NodePosition{},
		Links:   []LinkPosition{},
	}
	if s.ticks == 0 {
		return frame
	}

	frame.Nodes = make([]NodePosition, len(s.bodies))
	for i, b := range s.bodies {
		node := s.graph.Nodes[i]
		frame.Nodes[i] = NodePosition{
			ID:              b.id,
			Title:           node.Title,
			EntryType:       node.EntryType,
			ConnectionCount: node.ConnectionCount,
			Radius:          NodeRadius(node.ConnectionCount),
			X:               b.x,
			Y:               b.y,
			Pinned:          b.pinned != nil,
		}
	}
	frame.Links = make([]LinkPosition, len(s.links))
	for i, l := range s.links {
		source := s.bodies[l.source]
		target := s.bodies[l.target]
		frame.Links[i] = LinkPosition{
			Source: l.edge.Source,
			Target: l.edge.Target,
			Type:   l.edge.Type,
			Weight: l.edge.Weight,
			Label:  l.edge.Label,
			From:   Point{X: source.x, Y: source.y},
			To:     Point{X: target.x, Y: target.y},
		}
	}
	return frame
}

// EmptySettledFrame is the result for a graph without nodes.
func EmptySettledFrame() Frame {
	return Frame{Settled: true, Nodes: []NodePosition{}, Links: []LinkPosition{}}
}

// Settle runs a fresh simulation to completion. An empty graph settles
// immediately with an empty frame.
func Settle(g graph.Graph, width, height float64, options ...Option) (Frame, error) {
	sim, err := New(g, width, height, options...)
	if err != nil {
		if errors.Is(err, ErrNoNodes) {
			return EmptySettledFrame(), nil
		}
		return Frame{}, err
	}
	return sim.Run(0), nil
}
