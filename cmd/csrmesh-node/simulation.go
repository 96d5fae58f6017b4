package main

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/csrmesh/csrmesh-go/pkg/mesh"
	"github.com/csrmesh/csrmesh-go/pkg/tracker"
)

// Point is a position in metres.
type Point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

func (p Point) distance(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Floorplan places simulated nodes and derives link RSSI from distance
// with a log-distance path loss model. Each node's transmit power raises
// or lowers what its peers hear.
type Floorplan struct {
	mu        sync.RWMutex
	positions map[uint16]Point
	power     map[uint16]int8 // transmit power per node, dBm

	txPower  float64 // dBm heard at 1 m from a 0 dBm transmitter
	exponent float64
}

// NewFloorplan creates an empty floorplan.
func NewFloorplan(txPower, exponent float64) *Floorplan {
	if exponent <= 0 {
		exponent = 2
	}
	return &Floorplan{
		positions: make(map[uint16]Point),
		power:     make(map[uint16]int8),
		txPower:   txPower,
		exponent:  exponent,
	}
}

// Place sets the position of a node.
func (f *Floorplan) Place(id uint16, p Point) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions[id] = p
}

// Position returns the position of a node.
func (f *Floorplan) Position(id uint16) (Point, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.positions[id]
	return p, ok
}

// SetTxPower sets the transmit power of a node. Nodes default to 0 dBm.
func (f *Floorplan) SetTxPower(id uint16, dBm int8) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.power[id] = dBm
}

// Radio returns the radio of node id. Power set through it changes the
// signal strength every other node hears from id.
func (f *Floorplan) Radio(id uint16) mesh.Radio {
	return floorRadio{floor: f, id: id}
}

type floorRadio struct {
	floor *Floorplan
	id    uint16
}

func (r floorRadio) SetTxPower(dBm int8) error {
	r.floor.SetTxPower(r.id, dBm)
	return nil
}

// RSSI implements transport.RSSIFunc. Unplaced nodes hear each other at
// the weakest reportable level.
func (f *Floorplan) RSSI(from, to uint16) int8 {
	f.mu.RLock()
	a, okA := f.positions[from]
	b, okB := f.positions[to]
	power := f.power[from]
	f.mu.RUnlock()
	if !okA || !okB {
		return tracker.MinRSSI
	}

	d := math.Max(a.distance(b), 1)
	rssi := f.txPower + float64(power) - 10*f.exponent*math.Log10(d)
	return int8(math.Round(math.Max(math.Min(rssi, tracker.MaxRSSI), tracker.MinRSSI)))
}

// Walk moves a node along path at speed m/s, bouncing at either end, until
// ctx is done. Positions are updated every step.
func (f *Floorplan) Walk(ctx context.Context, id uint16, path []Point, speed float64, step time.Duration) {
	if len(path) < 2 || speed <= 0 {
		return
	}
	ticker := time.NewTicker(step)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			f.Place(id, pointAlong(path, speed*now.Sub(start).Seconds()))
		}
	}
}

// pointAlong returns the position after travelling dist metres along path,
// turning back at the ends.
func pointAlong(path []Point, dist float64) Point {
	var total float64
	for i := 1; i < len(path); i++ {
		total += path[i-1].distance(path[i])
	}
	if total == 0 {
		return path[0]
	}

	dist = math.Mod(dist, 2*total)
	forward := dist <= total
	if !forward {
		dist = 2*total - dist
	}

	for i := 1; i < len(path); i++ {
		seg := path[i-1].distance(path[i])
		if dist <= seg {
			if seg == 0 {
				return path[i]
			}
			t := dist / seg
			return Point{
				X: path[i-1].X + t*(path[i].X-path[i-1].X),
				Y: path[i-1].Y + t*(path[i].Y-path[i-1].Y),
			}
		}
		dist -= seg
	}
	return path[len(path)-1]
}
