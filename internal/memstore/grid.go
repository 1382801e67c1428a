package memstore

import (
	"math"

	"github.com/Auchit011/Vistagram-Application/internal/shared/geo"
)

type cellKey struct {
	X, Y int
}

// grid buckets ids by lat/lng cell so a radius query only visits cells its bounding box touches.
// It is not safe for concurrent use; Store guards it.
type grid struct {
	cellDeg float64
	cells   map[cellKey][]string
}

func newGrid(cellSizeM float64) *grid {
	if cellSizeM <= 0 {
		cellSizeM = 1000
	}
	return &grid{
		cellDeg: cellSizeM / geo.MetresPerDegree,
		cells:   make(map[cellKey][]string),
	}
}

func (g *grid) key(p geo.Point) cellKey {
	return cellKey{
		X: int(math.Floor(p.Lng / g.cellDeg)),
		Y: int(math.Floor(p.Lat / g.cellDeg)),
	}
}

func (g *grid) insert(id string, p geo.Point) {
	k := g.key(p)
	g.cells[k] = append(g.cells[k], id)
}

func (g *grid) remove(id string, p geo.Point) {
	k := g.key(p)
	ids := g.cells[k]
	for i, existing := range ids {
		if existing == id {
			ids[i] = ids[len(ids)-1]
			ids = ids[:len(ids)-1]
			break
		}
	}
	if len(ids) == 0 {
		delete(g.cells, k)
		return
	}
	g.cells[k] = ids
}

// within returns ids stored in cells that intersect the bounding box of the circle. Callers
// still filter by exact distance.
func (g *grid) within(center geo.Point, radiusM float64) []string {
	box := geo.BoundingBox(center, radiusM)
	minY := int(math.Floor(box.MinLat / g.cellDeg))
	maxY := int(math.Floor(box.MaxLat / g.cellDeg))

	var spans [][2]float64
	if box.MinLng <= box.MaxLng {
		spans = [][2]float64{{box.MinLng, box.MaxLng}}
	} else {
		spans = [][2]float64{{box.MinLng, 180}, {-180, box.MaxLng}}
	}

	var out []string
	for _, span := range spans {
		minX := int(math.Floor(span[0] / g.cellDeg))
		maxX := int(math.Floor(span[1] / g.cellDeg))
		// walk the populated cells instead when the box spans more cells than exist
		if (maxX-minX+1)*(maxY-minY+1) > len(g.cells) {
			for k, ids := range g.cells {
				if k.X >= minX && k.X <= maxX && k.Y >= minY && k.Y <= maxY {
					out = append(out, ids...)
				}
			}
			continue
		}
		for y := minY; y <= maxY; y++ {
			for x := minX; x <= maxX; x++ {
				out = append(out, g.cells[cellKey{X: x, Y: y}]...)
			}
		}
	}
	return out
}
