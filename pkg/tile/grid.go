// Package tile lays rendered fragments out on a grid, composites them into
// one image and scans such images back cell by cell.
package tile

import "math"

// Grid is a near-square arrangement of tile cells, filled row by row.
type Grid struct {
	Columns int
	Rows    int
}

// GridFor returns the grid for n tiles: ceil(sqrt(n)) columns and as many
// rows as needed.
func GridFor(n int) Grid {
	if n <= 0 {
		return Grid{}
	}
	cols := int(math.Ceil(math.Sqrt(float64(n))))
	// float rounding can overshoot on perfect squares
	for cols > 1 && (cols-1)*(cols-1) >= n {
		cols--
	}
	for cols*cols < n {
		cols++
	}
	return Grid{Columns: cols, Rows: (n + cols - 1) / cols}
}

// Cell returns the row and column of position i.
func (g Grid) Cell(i int) (row, col int) {
	return i / g.Columns, i % g.Columns
}

// Cells is the number of cells of the grid.
func (g Grid) Cells() int {
	return g.Columns * g.Rows
}
