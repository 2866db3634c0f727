// Package layout positions graph nodes with a force-directed simulation.
//
// A Simulation advances one tick per Step call; a Runner drives it on a timer.
package layout

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/MarcoPoloResearchLab/anchor/backend/internal/graph"
)

const (
	// AlphaMin is the temperature below which the simulation is settled.
	AlphaMin = 0.001
	// AlphaDecay is the per-tick geometric cooling rate toward zero.
	AlphaDecay = 0.02
	// VelocityDecay is the per-tick fraction of velocity lost to friction.
	VelocityDecay = 0.3
	// ReheatAlpha is the default temperature restored by Reheat.
	ReheatAlpha = 0.5

	referenceDistance = 80.0
	referenceStrength = 0.8
	tagDistance       = 120.0
	tagStrength       = 0.3
	chargeStrength    = -150.0
	centerStrength    = 0.05
	collidePadding    = 8.0
	minNodeRadius     = 8.0
	maxNodeRadius     = 20.0

	initialRadius = 10.0
)

var initialAngle = math.Pi * (3 - math.Sqrt(5))

var (
	// ErrNoNodes indicates an empty graph; callers treat it as already settled.
	ErrNoNodes = errors.New("layout: graph has no nodes")
	// ErrInvalidCanvas indicates a non-positive or non-finite canvas size.
	ErrInvalidCanvas = errors.New("layout: invalid canvas dimensions")
)

// NodeRadius is the rendered radius of a node with the given connection count.
func NodeRadius(connectionCount int) float64 {
	radius := 6 + 2*float64(connectionCount)
	return math.Max(minNodeRadius, math.Min(maxNodeRadius, radius))
}

// CollisionRadius is the exclusion radius of a node with the given connection count.
func CollisionRadius(connectionCount int) float64 {
	return NodeRadius(connectionCount) + collidePadding
}

// Point is a logical 2D position.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type body struct {
	id     string
	x, y   float64
	vx, vy float64
	pinned *Point
	radius float64
}

type link struct {
	source, target int
	edge           graph.Edge
	distance       float64
	strength       float64
	bias           float64
}

// Option customizes a Simulation.
type Option func(*settings)

type settings struct {
	seed     int64
	previous *Frame
	pinned   map[string]Point
}

// WithSeed fixes the jiggle source, making runs reproducible.
func WithSeed(seed int64) Option {
	return func(s *settings) {
		s.seed = seed
	}
}

// WithPrevious starts nodes at the positions of a prior frame when ids match.
func WithPrevious(frame Frame) Option {
	return func(s *settings) {
		copied := frame
		s.previous = &copied
	}
}

// WithPinned fixes a node at the given coordinates.
func WithPinned(id string, x, y float64) Option {
	return func(s *settings) {
		if s.pinned == nil {
			s.pinned = map[string]Point{}
		}
		s.pinned[id] = Point{X: x, Y: y}
	}
}

// Simulation is a single force-directed layout run. It is not safe for
// concurrent use; Runner serializes access.
type Simulation struct {
	graph         graph.Graph
	width, height float64
	bodies        []body
	index         map[string]int
	links         []link
	alpha         float64
	alphaTarget   float64
	ticks         int
	random        *rand.Rand
}

// New prepares a simulation for the graph on a width x height canvas.
func New(g graph.Graph, width, height float64, options ...Option) (*Simulation, error) {
	if !validDimension(width) || !validDimension(height) {
		return nil, fmt.Errorf("%w: %vx%v", ErrInvalidCanvas, width, height)
	}
	if len(g.Nodes) == 0 {
		return nil, ErrNoNodes
	}

	cfg := settings{seed: 1}
	for _, option := range options {
		option(&cfg)
	}

	previous := map[string]Point{}
	if cfg.previous != nil {
		for _, node := range cfg.previous.Nodes {
			previous[node.ID] = Point{X: node.X, Y: node.Y}
		}
	}

	sim := &Simulation{
		graph:  g,
		width:  width,
		height: height,
		bodies: make([]body, len(g.Nodes)),
		index:  make(map[string]int, len(g.Nodes)),
		alpha:  1,
		random: rand.New(rand.NewSource(cfg.seed)),
	}

	centerX, centerY := width/2, height/2
	for i, node := range g.Nodes {
		b := body{id: node.ID, radius: CollisionRadius(node.ConnectionCount)}
		if point, ok := previous[node.ID]; ok {
			b.x, b.y = point.X, point.Y
		} else {
			radius := initialRadius * math.Sqrt(0.5+float64(i))
			angle := float64(i) * initialAngle
			b.x = centerX + radius*math.Cos(angle)
			b.y = centerY + radius*math.Sin(angle)
		}
		if point, ok := cfg.pinned[node.ID]; ok {
			pinned := point
			b.pinned = &pinned
			b.x, b.y = point.X, point.Y
		}
		sim.bodies[i] = b
		sim.index[node.ID] = i
	}

	counts := make([]int, len(sim.bodies))
	for _, edge := range g.Edges {
		source, okSource := sim.index[edge.Source]
		target, okTarget := sim.index[edge.Target]
		if !okSource || !okTarget {
			continue
		}
		distance, strength := linkParameters(edge)
		sim.links = append(sim.links, link{
			source:   source,
			target:   target,
			edge:     edge,
			distance: distance,
			strength: strength,
		})
		counts[source]++
		counts[target]++
	}
	for i := range sim.links {
		l := &sim.links[i]
		l.bias = float64(counts[l.source]) / float64(counts[l.source]+counts[l.target])
	}
	return sim, nil
}

func linkParameters(edge graph.Edge) (distance, strength float64) {
	if edge.Type == graph.EdgeTypeReference {
		return referenceDistance, referenceStrength
	}
	weight := float64(edge.Weight)
	if weight < 1 {
		weight = 1
	}
	return tagDistance / weight, tagStrength * weight
}

func validDimension(value float64) bool {
	return value > 0 && !math.IsInf(value, 0) && !math.IsNaN(value)
}

// Alpha returns the current temperature.
func (s *Simulation) Alpha() float64 {
	return s.alpha
}

// Ticks returns the number of completed ticks.
func (s *Simulation) Ticks() int {
	return s.ticks
}

// Settled reports whether the temperature dropped below AlphaMin.
func (s *Simulation) Settled() bool {
	return s.alpha < AlphaMin
}

// Reheat raises the temperature so a settled simulation resumes from the
// current positions. A non-positive alpha uses ReheatAlpha.
func (s *Simulation) Reheat(alpha float64) {
	if alpha <= 0 {
		alpha = ReheatAlpha
	}
	if alpha > 1 {
		alpha = 1
	}
	s.alpha = alpha
}

// Pin fixes a node at the given coordinates.
func (s *Simulation) Pin(id string, x, y float64) bool {
	i, ok := s.index[id]
	if !ok {
		return false
	}
	s.bodies[i].pinned = &Point{X: x, Y: y}
	return true
}

// Unpin releases a pinned node.
func (s *Simulation) Unpin(id string) bool {
	i, ok := s.index[id]
	if !ok {
		return false
	}
	s.bodies[i].pinned = nil
	return true
}

// Step advances one tick and returns the resulting frame. Stepping a settled
// simulation returns the final frame unchanged.
func (s *Simulation) Step() Frame {
	if s.Settled() {
		return s.Frame()
	}
	s.alpha += (s.alphaTarget - s.alpha) * AlphaDecay

	s.applyLinks()
	s.applyCharge()
	s.applyCenter()
	s.applyCollide()

	for i := range s.bodies {
		b := &s.bodies[i]
		if b.pinned != nil {
			b.x, b.y = b.pinned.X, b.pinned.Y
			b.vx, b.vy = 0, 0
			continue
		}
		b.vx *= 1 - VelocityDecay
		b.vy *= 1 - VelocityDecay
		b.x += b.vx
		b.y += b.vy
	}
	s.ticks++
	return s.Frame()
}

// Run steps until settled or maxTicks ticks elapse; a non-positive maxTicks
// means no limit. It returns the last frame.
func (s *Simulation) Run(maxTicks int) Frame {
	frame := s.Frame()
	for !s.Settled() {
		if maxTicks > 0 && s.ticks >= maxTicks {
			break
		}
		frame = s.Step()
	}
	return frame
}

func (s *Simulation) jiggle() float64 {
	return (s.random.Float64() - 0.5) * 1e-6
}

func (s *Simulation) applyLinks() {
	for _, l := range s.links {
		source := &s.bodies[l.source]
		target := &s.bodies[l.target]
		x := target.x + target.vx - source.x - source.vx
		y := target.y + target.vy - source.y - source.vy
		if x == 0 {
			x = s.jiggle()
		}
		if y == 0 {
			y = s.jiggle()
		}
		length := math.Sqrt(x*x + y*y)
		length = (length - l.distance) / length * s.alpha * l.strength
		x *= length
		y *= length
		target.vx -= x * l.bias
		target.vy -= y * l.bias
		source.vx += x * (1 - l.bias)
		source.vy += y * (1 - l.bias)
	}
}

func (s *Simulation) applyCharge() {
	strength := chargeStrength * s.alpha
	for i := range s.bodies {
		current := &s.bodies[i]
		for j := range s.bodies {
			if i == j {
				continue
			}
			other := &s.bodies[j]
			x := other.x - current.x
			y := other.y - current.y
			if x == 0 {
				x = s.jiggle()
			}
			if y == 0 {
				y = s.jiggle()
			}
			distance := x*x + y*y
			if distance < 1 {
				distance = math.Sqrt(distance)
			}
			current.vx += x * strength / distance
			current.vy += y * strength / distance
		}
	}
}

func (s *Simulation) applyCenter() {
	var sumX, sumY float64
	for _, b := range s.bodies {
		sumX += b.x
		sumY += b.y
	}
	count := float64(len(s.bodies))
	shiftX := (sumX/count - s.width/2) * centerStrength
	shiftY := (sumY/count - s.height/2) * centerStrength
	for i := range s.bodies {
		s.bodies[i].x -= shiftX
		s.bodies[i].y -= shiftY
	}
}

func (s *Simulation) applyCollide() {
	for i := range s.bodies {
		current := &s.bodies[i]
		xi := current.x + current.vx
		yi := current.y + current.vy
		ri := current.radius
		ri2 := ri * ri
		for j := i + 1; j < len(s.bodies); j++ {
			other := &s.bodies[j]
			rj := other.radius
			r := ri + rj
			x := xi - other.x - other.vx
			y := yi - other.y - other.vy
			distance := x*x + y*y
			if distance >= r*r {
				continue
			}
			if x == 0 {
				x = s.jiggle()
				distance += x * x
			}
			if y == 0 {
				y = s.jiggle()
				distance += y * y
			}
			length := math.Sqrt(distance)
			overlap := (r - length) / length
			x *= overlap
			y *= overlap
			rj2 := rj * rj
			share := rj2 / (ri2 + rj2)
			current.vx += x * share
			current.vy += y * share
			other.vx -= x * (1 - share)
			other.vy -= y * (1 - share)
		}
	}
}
