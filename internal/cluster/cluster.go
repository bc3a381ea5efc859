// Package cluster groups markers into zoom-dependent clusters.
//
// Build projects every marker into Web Mercator unit space and clusters
// greedily from MaxZoom down to MinZoom. Each zoom level is backed by a
// k-d tree over the previous level, so a build costs O(n log n) per zoom
// and a viewport query is a range search on one level.
package cluster

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/jengzang/fleet-tracking-go/internal/models"
)

// ErrClusterNotFound is returned for ids that name no cluster in the index
var ErrClusterNotFound = errors.New("cluster not found")

// Options controls clustering
type Options struct {
	Radius    float64 `mapstructure:"radius"`    // pixels
	TileSize  float64 `mapstructure:"tile_size"` // pixels
	MinZoom   int     `mapstructure:"min_zoom"`
	MaxZoom   int     `mapstructure:"max_zoom"`
	MinPoints int     `mapstructure:"min_points"`
}

// DefaultOptions returns the standard clustering options
func DefaultOptions() Options {
	return Options{
		Radius:    60,
		TileSize:  256,
		MinZoom:   0,
		MaxZoom:   16,
		MinPoints: 2,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Radius <= 0 {
		o.Radius = d.Radius
	}
	if o.TileSize <= 0 {
		o.TileSize = d.TileSize
	}
	if o.MinZoom < 0 {
		o.MinZoom = 0
	}
	if o.MaxZoom <= 0 {
		o.MaxZoom = d.MaxZoom
	}
	if o.MinZoom > o.MaxZoom {
		o.MinZoom = o.MaxZoom
	}
	if o.MinPoints < 2 {
		o.MinPoints = d.MinPoints
	}
	return o
}

// Marker is one clusterable point. Payload is carried through untouched.
type Marker struct {
	ID       string        `json:"id"`
	Position models.LatLng `json:"position"`
	Payload  any           `json:"payload,omitempty"`
}

// Node is a query result: a leaf wrapping one marker, or a cluster
type Node struct {
	ID       string        `json:"id"`
	Cluster  bool          `json:"cluster"`
	Position models.LatLng `json:"position"`
	Count    int           `json:"count"`
	ChildIDs []string      `json:"childIds,omitempty"`
	Payload  any           `json:"payload,omitempty"`
}

type node struct {
	x, y  float64
	id    string
	count int
	// lowest zoom this node has been visited at while building
	zoom     int
	marker   *Marker
	children []*node
	origin   int
}

func (n *node) isCluster() bool { return n.marker == nil }

func (n *node) toNode() Node {
	out := Node{
		ID:       n.id,
		Cluster:  n.isCluster(),
		Position: models.LatLng{Lat: yLat(n.y), Lng: xLng(n.x)},
		Count:    n.count,
	}
	if n.isCluster() {
		out.ChildIDs = make([]string, len(n.children))
		for i, c := range n.children {
			out.ChildIDs[i] = c.id
		}
	} else {
		// leaves report the exact marker position rather than a round trip
		// through the projection
		out.Position = n.marker.Position
		out.Payload = n.marker.Payload
	}
	return out
}

type level struct {
	nodes []*node
	index spatialIndex
}

func newLevel(nodes []*node) *level {
	return &level{nodes: nodes, index: newSpatialIndex(nodes)}
}

// Index is an immutable clustering of one marker set. It is safe for
// concurrent reads.
type Index struct {
	opts     Options
	levels   []*level // indexed by zoom; MaxZoom+1 holds the leaves
	clusters map[string]*node
	markers  int
}

// Build clusters markers at every zoom between opts.MinZoom and opts.MaxZoom
func Build(markers []Marker, opts Options) *Index {
	opts = opts.withDefaults()

	sorted := make([]Marker, len(markers))
	copy(sorted, markers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	leaves := make([]*node, len(sorted))
	for i := range sorted {
		m := &sorted[i]
		leaves[i] = &node{
			x:      lngX(m.Position.Lng),
			y:      latY(m.Position.Lat),
			id:     m.ID,
			count:  1,
			zoom:   math.MaxInt,
			marker: m,
			origin: opts.MaxZoom + 1,
		}
	}

	idx := &Index{
		opts:     opts,
		levels:   make([]*level, opts.MaxZoom+2),
		clusters: make(map[string]*node),
		markers:  len(sorted),
	}
	idx.levels[opts.MaxZoom+1] = newLevel(leaves)

	for z := opts.MaxZoom; z >= opts.MinZoom; z-- {
		idx.levels[z] = newLevel(idx.clusterLevel(idx.levels[z+1], z))
	}
	return idx
}

// clusterLevel merges the nodes of the level above zoom into the nodes
// visible at zoom
func (idx *Index) clusterLevel(prev *level, zoom int) []*node {
	r := unitRadius(idx.opts.Radius, idx.opts.TileSize, zoom)
	next := make([]*node, 0, len(prev.nodes))
	seq := 0

	for _, p := range prev.nodes {
		if p.zoom <= zoom {
			continue
		}
		p.zoom = zoom

		count := p.count
		var joined []*node
		for _, b := range prev.index.within(p.x, p.y, r) {
			if b == p || b.zoom <= zoom {
				continue
			}
			joined = append(joined, b)
			count += b.count
		}

		if len(joined) == 0 || count < idx.opts.MinPoints {
			next = append(next, p)
			for _, b := range joined {
				b.zoom = zoom
				next = append(next, b)
			}
			continue
		}

		wx, wy := p.x*float64(p.count), p.y*float64(p.count)
		children := append(make([]*node, 0, len(joined)+1), p)
		for _, b := range joined {
			b.zoom = zoom
			wx += b.x * float64(b.count)
			wy += b.y * float64(b.count)
			children = append(children, b)
		}

		c := &node{
			x:        wx / float64(count),
			y:        wy / float64(count),
			id:       fmt.Sprintf("cluster-%d-%d", zoom, seq),
			count:    count,
			zoom:     math.MaxInt,
			children: children,
			origin:   zoom,
		}
		seq++
		idx.clusters[c.id] = c
		next = append(next, c)
	}
	return next
}

// Options returns the effective options of the index
func (idx *Index) Options() Options {
	return idx.opts
}

// Len returns the number of markers in the index
func (idx *Index) Len() int {
	return idx.markers
}

// levelFor returns the level used at zoom. Outside [MinZoom, MaxZoom]
// clustering is disabled and the leaves are returned.
func (idx *Index) levelFor(zoom float64) *level {
	z := int(math.Floor(zoom))
	if z < idx.opts.MinZoom || z > idx.opts.MaxZoom {
		return idx.levels[idx.opts.MaxZoom+1]
	}
	return idx.levels[z]
}

// Query returns the leaves and clusters visible in the viewport at its
// zoom. Bounds whose west edge is east of their east edge are treated as
// crossing the antimeridian.
func (idx *Index) Query(vp models.Viewport) []Node {
	lvl := idx.levelFor(vp.Zoom)

	minLat := math.Max(-90, math.Min(90, vp.SouthWest.Lat))
	maxLat := math.Max(-90, math.Min(90, vp.NorthEast.Lat))
	if minLat > maxLat {
		minLat, maxLat = maxLat, minLat
	}
	minY, maxY := latY(maxLat), latY(minLat)

	var found []*node
	west, east := vp.SouthWest.Lng, vp.NorthEast.Lng
	switch {
	case east-west >= 360:
		found = lvl.index.rangeBox(0, minY, 1, maxY)
	default:
		west, east = wrapLng(west), wrapLng(east)
		if west > east {
			found = append(lvl.index.rangeBox(lngX(west), minY, 1, maxY),
				lvl.index.rangeBox(0, minY, lngX(east), maxY)...)
		} else {
			found = lvl.index.rangeBox(lngX(west), minY, lngX(east), maxY)
		}
	}

	sort.Slice(found, func(i, j int) bool { return found[i].id < found[j].id })
	out := make([]Node, 0, len(found))
	seen := make(map[*node]bool, len(found))
	for _, n := range found {
		// a node exactly on the antimeridian can match both halves
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n.toNode())
	}
	return out
}

func wrapLng(lng float64) float64 {
	if lng >= -180 && lng <= 180 {
		return lng
	}
	return math.Mod(math.Mod(lng+180, 360)+360, 360) - 180
}

// Children returns the direct children of a cluster, one zoom level in
func (idx *Index) Children(clusterID string) ([]Node, error) {
	c, ok := idx.clusters[clusterID]
	if !ok {
		return nil, fmt.Errorf("children of %q: %w", clusterID, ErrClusterNotFound)
	}
	out := make([]Node, len(c.children))
	for i, child := range c.children {
		out[i] = child.toNode()
	}
	return out, nil
}

// Leaves returns the markers under a cluster, skipping offset and
// returning at most limit. A non-positive limit returns all of them.
func (idx *Index) Leaves(clusterID string, limit, offset int) ([]Marker, error) {
	c, ok := idx.clusters[clusterID]
	if !ok {
		return nil, fmt.Errorf("leaves of %q: %w", clusterID, ErrClusterNotFound)
	}
	if limit <= 0 {
		limit = c.count
	}
	if offset < 0 {
		offset = 0
	}

	leaves := make([]Marker, 0, min(limit, c.count))
	appendLeaves(c, &leaves, limit, offset, 0)
	return leaves, nil
}

// appendLeaves walks the subtree depth first and returns how many leaves
// it skipped
func appendLeaves(n *node, out *[]Marker, limit, offset, skipped int) int {
	for _, child := range n.children {
		if len(*out) == limit {
			break
		}
		if child.isCluster() {
			if skipped+child.count <= offset {
				skipped += child.count
				continue
			}
			skipped = appendLeaves(child, out, limit, offset, skipped)
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		*out = append(*out, *child.marker)
	}
	return skipped
}

// ExpansionZoom returns the lowest zoom at which the cluster splits into
// more than one node
func (idx *Index) ExpansionZoom(clusterID string) (int, error) {
	c, ok := idx.clusters[clusterID]
	if !ok {
		return 0, fmt.Errorf("expansion zoom of %q: %w", clusterID, ErrClusterNotFound)
	}

	zoom := c.origin
	for zoom <= idx.opts.MaxZoom {
		zoom++
		if len(c.children) != 1 || !c.children[0].isCluster() {
			break
		}
		c = c.children[0]
	}
	return zoom, nil
}
