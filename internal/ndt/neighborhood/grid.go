// Package neighborhood enumerates fixed integer neighbourhoods on a voxel
// grid.
package neighborhood

// Offset is an integer displacement between voxel indices.
type Offset [3]int

// Grid is a cubic neighbourhood of side 2*radius+1 over the first dim axes.
// Axes beyond dim keep a zero offset.
type Grid struct {
	dim     int
	radius  int
	offsets []Offset
}

// NewGrid builds the neighbourhood. dim is clamped to [1, 3] and radius to
// be non-negative. The zero offset is always included.
func NewGrid(dim, radius int) *Grid {
	if dim < 1 {
		dim = 1
	}
	if dim > 3 {
		dim = 3
	}
	if radius < 0 {
		radius = 0
	}
	g := &Grid{dim: dim, radius: radius}

	span := [3]int{}
	for a := 0; a < dim; a++ {
		span[a] = radius
	}
	for x := -span[0]; x <= span[0]; x++ {
		for y := -span[1]; y <= span[1]; y++ {
			for z := -span[2]; z <= span[2]; z++ {
				g.offsets = append(g.offsets, Offset{x, y, z})
			}
		}
	}
	return g
}

// Default returns the 3x3x3 neighbourhood.
func Default() *Grid { return NewGrid(3, 1) }

// Dim returns the number of axes the neighbourhood spans.
func (g *Grid) Dim() int { return g.dim }

// Radius returns the neighbourhood radius.
func (g *Grid) Radius() int { return g.radius }

// Len returns the number of offsets.
func (g *Grid) Len() int { return len(g.offsets) }

// Offsets returns a copy of the offsets.
func (g *Grid) Offsets() []Offset {
	out := make([]Offset, len(g.offsets))
	copy(out, g.offsets)
	return out
}

// Visit calls fn for every offset.
func (g *Grid) Visit(fn func(Offset)) {
	for _, o := range g.offsets {
		fn(o)
	}
}
