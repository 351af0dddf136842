package core

import "fmt"

// Grid2 is a flat row-major float64 table with bounds-checked indexing.
type Grid2 struct {
	n0, n1 int
	data   []float64
}

// NewGrid2 allocates a zeroed n0 × n1 table.
func NewGrid2(n0, n1 int) Grid2 {
	return Grid2{n0: n0, n1: n1, data: make([]float64, n0*n1)}
}

// Dims returns the table shape.
func (g Grid2) Dims() (int, int) { return g.n0, g.n1 }

func (g Grid2) index(i, j int) int {
	if i < 0 || i >= g.n0 || j < 0 || j >= g.n1 {
		panic(fmt.Sprintf("core: Grid2 index (%d,%d) out of range (%d,%d)", i, j, g.n0, g.n1))
	}
	return i*g.n1 + j
}

// At returns the value at (i,j).
func (g Grid2) At(i, j int) float64 { return g.data[g.index(i, j)] }

// Set stores v at (i,j).
func (g Grid2) Set(i, j int, v float64) { g.data[g.index(i, j)] = v }

// Add adds v to the value at (i,j).
func (g Grid2) Add(i, j int, v float64) { g.data[g.index(i, j)] += v }

// Row returns row i as a slice sharing storage.
func (g Grid2) Row(i int) []float64 {
	g.index(i, 0)
	return g.data[i*g.n1 : (i+1)*g.n1]
}

// Clone returns a deep copy.
func (g Grid2) Clone() Grid2 {
	c := Grid2{n0: g.n0, n1: g.n1, data: make([]float64, len(g.data))}
	copy(c.data, g.data)
	return c
}

// Grid3 is a flat row-major float64 table over three small integer keys.
type Grid3 struct {
	n0, n1, n2 int
	data       []float64
}

// NewGrid3 allocates a zeroed n0 × n1 × n2 table.
func NewGrid3(n0, n1, n2 int) Grid3 {
	return Grid3{n0: n0, n1: n1, n2: n2, data: make([]float64, n0*n1*n2)}
}

// Dims returns the table shape.
func (g Grid3) Dims() (int, int, int) { return g.n0, g.n1, g.n2 }

func (g Grid3) index(i, j, k int) int {
	if i < 0 || i >= g.n0 || j < 0 || j >= g.n1 || k < 0 || k >= g.n2 {
		panic(fmt.Sprintf("core: Grid3 index (%d,%d,%d) out of range (%d,%d,%d)", i, j, k, g.n0, g.n1, g.n2))
	}
	return (i*g.n1+j)*g.n2 + k
}

// At returns the value at (i,j,k).
func (g Grid3) At(i, j, k int) float64 { return g.data[g.index(i, j, k)] }

// Set stores v at (i,j,k).
func (g Grid3) Set(i, j, k int, v float64) { g.data[g.index(i, j, k)] = v }

// Add adds v to the value at (i,j,k).
func (g Grid3) Add(i, j, k int, v float64) { g.data[g.index(i, j, k)] += v }

// Row returns the innermost row at (i,j) sharing storage.
func (g Grid3) Row(i, j int) []float64 {
	start := g.index(i, j, 0)
	return g.data[start : start+g.n2]
}

// Grid4 is a flat row-major float64 table over four small integer keys.
type Grid4 struct {
	n0, n1, n2, n3 int
	data           []float64
}

// NewGrid4 allocates a zeroed n0 × n1 × n2 × n3 table.
func NewGrid4(n0, n1, n2, n3 int) Grid4 {
	return Grid4{n0: n0, n1: n1, n2: n2, n3: n3, data: make([]float64, n0*n1*n2*n3)}
}

// Dims returns the table shape.
func (g Grid4) Dims() (int, int, int, int) { return g.n0, g.n1, g.n2, g.n3 }

func (g Grid4) index(i, j, k, l int) int {
	if i < 0 || i >= g.n0 || j < 0 || j >= g.n1 || k < 0 || k >= g.n2 || l < 0 || l >= g.n3 {
		panic(fmt.Sprintf("core: Grid4 index (%d,%d,%d,%d) out of range (%d,%d,%d,%d)",
			i, j, k, l, g.n0, g.n1, g.n2, g.n3))
	}
	return ((i*g.n1+j)*g.n2+k)*g.n3 + l
}

// At returns the value at (i,j,k,l).
func (g Grid4) At(i, j, k, l int) float64 { return g.data[g.index(i, j, k, l)] }

// Set stores v at (i,j,k,l).
func (g Grid4) Set(i, j, k, l int, v float64) { g.data[g.index(i, j, k, l)] = v }

// Row returns the innermost row at (i,j,k) sharing storage.
func (g Grid4) Row(i, j, k int) []float64 {
	start := g.index(i, j, k, 0)
	return g.data[start : start+g.n3]
}
