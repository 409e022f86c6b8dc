package opt

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// kdHouse is a house position tagged with its handle.
type kdHouse struct {
	x, y float64
	idx  int
}

func (p kdHouse) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(kdHouse)
	if d == 0 {
		return p.x - q.x
	}
	return p.y - q.y
}

func (p kdHouse) Dims() int { return 2 }

// Distance is squared, matching the tree's plane pruning.
func (p kdHouse) Distance(c kdtree.Comparable) float64 {
	q := c.(kdHouse)
	dx, dy := p.x-q.x, p.y-q.y
	return dx*dx + dy*dy
}

type kdHouses []kdHouse

func (p kdHouses) Index(i int) kdtree.Comparable         { return p[i] }
func (p kdHouses) Len() int                              { return len(p) }
func (p kdHouses) Pivot(d kdtree.Dim) int                { return kdPlane{Dim: d, kdHouses: p}.Pivot() }
func (p kdHouses) Slice(start, end int) kdtree.Interface { return p[start:end] }

type kdPlane struct {
	kdtree.Dim
	kdHouses
}

func (p kdPlane) Less(i, j int) bool {
	if p.Dim == 0 {
		return p.kdHouses[i].x < p.kdHouses[j].x
	}
	return p.kdHouses[i].y < p.kdHouses[j].y
}
func (p kdPlane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p kdPlane) Slice(start, end int) kdtree.SortSlicer {
	return kdPlane{Dim: p.Dim, kdHouses: p.kdHouses[start:end]}
}
func (p kdPlane) Swap(i, j int) {
	p.kdHouses[i], p.kdHouses[j] = p.kdHouses[j], p.kdHouses[i]
}

// neighbourIndex answers k-nearest queries over fixed house positions.
type neighbourIndex struct {
	tree *kdtree.Tree
	pts  []kdHouse
}

func newNeighbourIndex(houses []House) *neighbourIndex {
	pts := make([]kdHouse, len(houses))
	for i, h := range houses {
		pts[i] = kdHouse{x: h.X, y: h.Y, idx: i}
	}
	// the tree reorders its input; keep pts in handle order for queries
	build := make(kdHouses, len(pts))
	copy(build, pts)
	return &neighbourIndex{tree: kdtree.New(build, false), pts: pts}
}

type neighbour struct {
	idx  int
	dist float64
}

// nearest appends to dst the handles of the k houses closest to house q,
// excluding q, nearest first. Ties break on handle.
func (ni *neighbourIndex) nearest(q, k int, dst []int) []int {
	keep := kdtree.NewNKeeper(k + 1)
	ni.tree.NearestSet(keep, ni.pts[q])
	found := make([]neighbour, 0, len(keep.Heap))
	for _, c := range keep.Heap {
		if c.Comparable == nil || math.IsInf(c.Dist, 1) {
			continue
		}
		p := c.Comparable.(kdHouse)
		if p.idx == q {
			continue
		}
		found = append(found, neighbour{idx: p.idx, dist: c.Dist})
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].dist != found[j].dist {
			return found[i].dist < found[j].dist
		}
		return found[i].idx < found[j].idx
	})
	if len(found) > k {
		found = found[:k]
	}
	for _, f := range found {
		dst = append(dst, f.idx)
	}
	return dst
}
