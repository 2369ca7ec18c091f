package raster

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ESRI ASCII grid codec. The header is six "key value" lines (ncols, nrows,
// xllcorner or xllcenter, yllcorner or yllcenter, cellsize, NODATA_value)
// followed by nrows rows of ncols samples, north row first.

const defaultNoData = -99999.0

// ReadASCIIGrid parses an ESRI ASCII grid. The CRS kind cannot be expressed in
// the grid itself, so the caller supplies it (see ReadASCIIGridFile).
func ReadASCIIGrid(r io.Reader, kind CRSKind, datum Datum) (*Grid, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 1024*1024), 16*1024*1024)
	sc.Split(bufio.ScanWords)

	next := func() (string, error) {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return "", err
			}
			return "", io.ErrUnexpectedEOF
		}
		return sc.Text(), nil
	}

	var (
		cols, rows       int
		llx, lly, cell   float64
		noData           = defaultNoData
		centerRegistered bool
	)

	// Header: key/value pairs until the first bare number.
	var pending string
	for {
		tok, err := next()
		if err != nil {
			return nil, fmt.Errorf("reading grid header: %w", err)
		}
		key := strings.ToLower(tok)
		if _, err := strconv.ParseFloat(tok, 64); err == nil {
			// First data token.
			pending = tok
			break
		}
		val, err := next()
		if err != nil {
			return nil, fmt.Errorf("reading grid header value for %q: %w", key, err)
		}
		switch key {
		case "ncols":
			cols, err = strconv.Atoi(val)
		case "nrows":
			rows, err = strconv.Atoi(val)
		case "xllcorner":
			llx, err = strconv.ParseFloat(val, 64)
		case "xllcenter":
			llx, err = strconv.ParseFloat(val, 64)
			centerRegistered = true
		case "yllcorner":
			lly, err = strconv.ParseFloat(val, 64)
		case "yllcenter":
			lly, err = strconv.ParseFloat(val, 64)
			centerRegistered = true
		case "cellsize":
			cell, err = strconv.ParseFloat(val, 64)
		case "nodata_value":
			noData, err = strconv.ParseFloat(val, 64)
		default:
			return nil, fmt.Errorf("unknown grid header key %q", key)
		}
		if err != nil {
			return nil, fmt.Errorf("invalid grid header value %q for %q: %w", val, key, err)
		}
	}

	if cols <= 0 || rows <= 0 {
		return nil, fmt.Errorf("invalid grid dimensions %dx%d", cols, rows)
	}
	if cell <= 0 {
		return nil, fmt.Errorf("invalid cellsize %g", cell)
	}

	ras := New(cols, rows, noData)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			var tok string
			if pending != "" {
				tok, pending = pending, ""
			} else {
				var err error
				tok, err = next()
				if err != nil {
					return nil, fmt.Errorf("reading sample (%d,%d): %w", col, row, err)
				}
			}
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid sample %q at (%d,%d): %w", tok, col, row, err)
			}
			ras.Set(col, row, v)
		}
	}

	// Map origin is the center of the top-left pixel. Corner-registered grids
	// shift by half a cell.
	half := cell / 2
	if centerRegistered {
		half = 0
	}
	gr := GeoRef{
		OriginX: llx + half,
		OriginY: lly + half + float64(rows-1)*cell,
		DX:      cell,
		DY:      -cell,
		Kind:    kind,
		Datum:   datum,
	}
	return &Grid{GeoRef: gr, Raster: ras}, nil
}

// ReadASCIIGridFile reads an ESRI ASCII grid from disk. If a .prj sidecar
// exists next to the grid and names a geographic coordinate system without a
// projection, the grid is treated as geographic (degrees); otherwise as
// projected (meters).
func ReadASCIIGridFile(path string, datum Datum) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening grid: %w", err)
	}
	defer f.Close()

	kind := Projected
	if prj, err := os.ReadFile(sidecarPath(path, ".prj")); err == nil {
		wkt := strings.ToUpper(string(prj))
		if strings.Contains(wkt, "GEOGCS") && !strings.Contains(wkt, "PROJCS") {
			kind = Geographic
		}
	}

	g, err := ReadASCIIGrid(f, kind, datum)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// WriteASCIIGrid writes the grid in ESRI ASCII format, corner-registered.
// The format carries a single cellsize, so the grid must have square north-up
// cells (DY == -DX).
func WriteASCIIGrid(w io.Writer, g *Grid) error {
	if g.DX <= 0 || g.DY != -g.DX {
		return fmt.Errorf("cannot write cell size (%g, %g): ESRI ASCII grids need square north-up cells", g.DX, g.DY)
	}
	bw := bufio.NewWriter(w)
	cell := g.DX
	llx := g.OriginX - cell/2
	lly := g.OriginY + float64(g.Rows-1)*g.DY - cell/2

	fmt.Fprintf(bw, "ncols %d\n", g.Cols)
	fmt.Fprintf(bw, "nrows %d\n", g.Rows)
	fmt.Fprintf(bw, "xllcorner %.12g\n", llx)
	fmt.Fprintf(bw, "yllcorner %.12g\n", lly)
	fmt.Fprintf(bw, "cellsize %.12g\n", cell)
	fmt.Fprintf(bw, "NODATA_value %.12g\n", g.NoData)

	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			if col > 0 {
				if err := bw.WriteByte(' '); err != nil {
					return err
				}
			}
			if _, err := fmt.Fprintf(bw, "%.12g", g.At(col, row)); err != nil {
				return err
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteASCIIGridFile writes the grid to disk.
func WriteASCIIGridFile(path string, g *Grid) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating grid file: %w", err)
	}
	if err := WriteASCIIGrid(f, g); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func sidecarPath(path, ext string) string {
	if i := strings.LastIndex(path, "."); i > strings.LastIndexByte(path, os.PathSeparator) {
		return path[:i] + ext
	}
	return path + ext
}
