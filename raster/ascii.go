package raster

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// OpenASCIIGrid loads an ESRI ASCII grid (.asc). The CRS is taken from a
// .prj sidecar next to the grid when present. The whole grid is held in
// memory, so repeated window reads never touch the file again.
func OpenASCIIGrid(path string) (*Memory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	m, err := ReadASCIIGrid(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	prj := strings.TrimSuffix(path, filepath.Ext(path)) + ".prj"
	if data, err := os.ReadFile(prj); err == nil {
		m.SetSpatialRef(strings.TrimSpace(string(data)))
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", prj, err)
	}
	return m, nil
}

type asciiHeader struct {
	ncols, nrows int
	x, y         float64
	centre       bool
	dx, dy       float64
	nodata       float64
	hasNoData    bool
}

// ReadASCIIGrid parses an ESRI ASCII grid. Grids whose samples are all
// integer literals load as Int32, anything else as Float32.
func ReadASCIIGrid(r io.Reader) (*Memory, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	sc.Split(bufio.ScanWords)

	var h asciiHeader
	var pending string
	seen := map[string]bool{}
	for sc.Scan() {
		// the first token that reads as a number, nan included, starts the data
		if _, err := strconv.ParseFloat(sc.Text(), 64); err == nil {
			pending = sc.Text()
			break
		}
		key := strings.ToLower(sc.Text())
		if !sc.Scan() {
			return nil, fmt.Errorf("%w: header %q has no value", ErrInvalidData, key)
		}
		val := sc.Text()
		if err := h.set(key, val); err != nil {
			return nil, err
		}
		seen[key] = true
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if h.ncols <= 0 || h.nrows <= 0 || h.dx <= 0 {
		return nil, fmt.Errorf("%w: incomplete ascii grid header", ErrInvalidData)
	}
	if h.dy == 0 {
		h.dy = h.dx
	}
	h.centre = seen["xllcenter"] || seen["yllcenter"]

	n := h.ncols * h.nrows
	values := make([]float64, 0, n)
	integer := true
	add := func(tok string) error {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return fmt.Errorf("%w: sample %q", ErrInvalidData, tok)
		}
		if integer && strings.ContainsAny(tok, ".eEnN") {
			integer = false
		}
		values = append(values, v)
		return nil
	}
	if pending != "" {
		if err := add(pending); err != nil {
			return nil, err
		}
	}
	for sc.Scan() && len(values) < n {
		if err := add(sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(values) != n {
		return nil, fmt.Errorf("%w: expected %d samples, got %d", ErrInvalidData, n, len(values))
	}

	left, bottom := h.x, h.y
	if h.centre {
		left -= h.dx / 2
		bottom -= h.dy / 2
	}
	t := NorthUp(left, bottom+float64(h.nrows)*h.dy, h.dx, h.dy)

	dt := Float32
	if integer && (!h.hasNoData || h.nodata == math.Trunc(h.nodata)) {
		dt = Int32
	}
	m, err := NewMemory(h.ncols, h.nrows, t, dt, values)
	if err != nil {
		return nil, err
	}
	if h.hasNoData {
		m.SetNoData(h.nodata)
	}
	return m, nil
}

func (h *asciiHeader) set(key, val string) error {
	var err error
	switch key {
	case "ncols":
		h.ncols, err = strconv.Atoi(val)
	case "nrows":
		h.nrows, err = strconv.Atoi(val)
	case "xllcorner", "xllcenter":
		h.x, err = strconv.ParseFloat(val, 64)
	case "yllcorner", "yllcenter":
		h.y, err = strconv.ParseFloat(val, 64)
	case "cellsize":
		h.dx, err = strconv.ParseFloat(val, 64)
	case "dx":
		h.dx, err = strconv.ParseFloat(val, 64)
	case "dy":
		h.dy, err = strconv.ParseFloat(val, 64)
	case "nodata_value":
		h.nodata, err = strconv.ParseFloat(val, 64)
		h.hasNoData = err == nil
	default:
		return fmt.Errorf("%w: unknown ascii grid header %q", ErrInvalidData, key)
	}
	if err != nil {
		return fmt.Errorf("%w: header %s=%q", ErrInvalidData, key, val)
	}
	return nil
}
