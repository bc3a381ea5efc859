package cluster

import (
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// entry is a projected node stored in a per-zoom k-d tree
type entry struct {
	x, y float64
	node *node
}

func (e entry) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	o := c.(entry)
	if d == 0 {
		return e.x - o.x
	}
	return e.y - o.y
}

func (e entry) Dims() int { return 2 }

// Distance is squared Euclidean distance in unit space
func (e entry) Distance(c kdtree.Comparable) float64 {
	o := c.(entry)
	dx, dy := e.x-o.x, e.y-o.y
	return dx*dx + dy*dy
}

type entries []entry

func (e entries) Index(i int) kdtree.Comparable { return e[i] }
func (e entries) Len() int                      { return len(e) }
func (e entries) Pivot(d kdtree.Dim) int        { return plane{entries: e, dim: d}.Pivot() }
func (e entries) Slice(start, end int) kdtree.Interface {
	return e[start:end]
}

// plane sorts entries along one dimension for median partitioning
type plane struct {
	entries
	dim kdtree.Dim
}

func (p plane) Less(i, j int) bool {
	if p.dim == 0 {
		return p.entries[i].x < p.entries[j].x
	}
	return p.entries[i].y < p.entries[j].y
}

func (p plane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }

func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.entries = p.entries[start:end]
	return p
}

func (p plane) Swap(i, j int) {
	p.entries[i], p.entries[j] = p.entries[j], p.entries[i]
}

// spatialIndex wraps a k-d tree over the nodes of one zoom level
type spatialIndex struct {
	tree *kdtree.Tree
}

func newSpatialIndex(nodes []*node) spatialIndex {
	if len(nodes) == 0 {
		return spatialIndex{}
	}
	items := make(entries, len(nodes))
	for i, n := range nodes {
		items[i] = entry{x: n.x, y: n.y, node: n}
	}
	return spatialIndex{tree: kdtree.New(items, false)}
}

// within returns the nodes whose distance from (x, y) is at most r
func (s spatialIndex) within(x, y, r float64) []*node {
	if s.tree == nil {
		return nil
	}
	keep := kdtree.NewDistKeeper(r * r)
	s.tree.NearestSet(keep, entry{x: x, y: y})

	out := make([]*node, 0, len(keep.Heap))
	for _, c := range keep.Heap {
		// the keeper seeds its heap with an empty sentinel
		if c.Comparable == nil {
			continue
		}
		out = append(out, c.Comparable.(entry).node)
	}
	return out
}

// rangeBox returns the nodes inside the axis-aligned box. The tree is
// searched with the box's circumscribed circle and the result filtered.
func (s spatialIndex) rangeBox(minX, minY, maxX, maxY float64) []*node {
	if s.tree == nil {
		return nil
	}
	cx, cy := (minX+maxX)/2, (minY+maxY)/2
	r := math.Hypot(maxX-minX, maxY-minY)/2 + 1e-12

	var out []*node
	for _, n := range s.within(cx, cy, r) {
		if n.x >= minX && n.x <= maxX && n.y >= minY && n.y <= maxY {
			out = append(out, n)
		}
	}
	return out
}
