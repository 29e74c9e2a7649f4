// Package pointio reads and writes point clouds for map building.
//
// Two formats are supported: the whitespace separated ASC text format
// (X Y Z [extra columns...], '#' comments) and binary or ASCII PCD files.
package pointio

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// ReadASC parses one point per line from r. The first three numeric
// columns are X, Y and Z; further columns are ignored. Columns may be
// separated by whitespace or commas. Blank lines and lines starting with
// '#' are skipped.
func ReadASC(r io.Reader) ([]r3.Vec, error) {
	var points []r3.Vec
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.FieldsFunc(text, func(c rune) bool {
			return c == ',' || c == ' ' || c == '\t'
		})
		if len(fields) < 3 {
			return nil, fmt.Errorf("line %d: expected at least 3 columns, got %d", line, len(fields))
		}
		var v [3]float64
		for i := 0; i < 3; i++ {
			f, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: column %d: %w", line, i+1, err)
			}
			v[i] = f
		}
		points = append(points, r3.Vec{X: v[0], Y: v[1], Z: v[2]})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read asc: %w", err)
	}
	return points, nil
}

// WriteASC writes points in the CloudCompare-compatible ASC layout.
// extraHeader describes the optional extra columns, one value per point
// from extra (which may be nil).
func WriteASC(w io.Writer, points []r3.Vec, extraHeader string, extra []float64) error {
	if extra != nil && len(extra) != len(points) {
		return fmt.Errorf("extra column has %d values for %d points", len(extra), len(points))
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# Exported points\n")
	fmt.Fprintf(bw, "# Format: X Y Z%s\n", extraHeader)
	for i, p := range points {
		fmt.Fprintf(bw, "%.6f %.6f %.6f", p.X, p.Y, p.Z)
		if extra != nil {
			fmt.Fprintf(bw, " %.6f", extra[i])
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}
