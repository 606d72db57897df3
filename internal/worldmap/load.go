package worldmap

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/banshee-data/pose.report/internal/geom"
)

// mapFile is the on-disk JSON schema. Exactly one of Segments or Grid
// must be present.
type mapFile struct {
	Segments []Segment     `json:"segments,omitempty"`
	Grid     *gridFileSpec `json:"grid,omitempty"`
}

type gridFileSpec struct {
	Origin     geom.Point `json:"origin"`
	Resolution float64    `json:"resolution"`
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	// Rows are strings of '.' (free) and '#' (occupied), top row first,
	// which keeps hand-authored map files readable.
	Rows []string `json:"rows"`
}

// Load reads a map description from a JSON file. The file declares
// either a "segments" wall list or a "grid" occupancy block.
func Load(path string) (Map, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("worldmap: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes a JSON map description.
func Parse(raw []byte) (Map, error) {
	var f mapFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("worldmap: decode map: %w", err)
	}
	switch {
	case len(f.Segments) > 0 && f.Grid != nil:
		return nil, fmt.Errorf("worldmap: map declares both segments and grid")
	case len(f.Segments) > 0:
		return NewSegmentMap(f.Segments)
	case f.Grid != nil:
		return parseGrid(f.Grid)
	default:
		return nil, fmt.Errorf("worldmap: map declares neither segments nor grid")
	}
}

func parseGrid(spec *gridFileSpec) (Map, error) {
	if len(spec.Rows) != spec.Height {
		return nil, fmt.Errorf("worldmap: grid has %d rows, want %d", len(spec.Rows), spec.Height)
	}
	cells := make([]bool, spec.Width*spec.Height)
	for i, row := range spec.Rows {
		if len(row) != spec.Width {
			return nil, fmt.Errorf("worldmap: grid row %d has %d cells, want %d", i, len(row), spec.Width)
		}
		// Rows are listed top-first; cell storage is bottom-first.
		y := spec.Height - 1 - i
		for x, c := range row {
			switch c {
			case '#':
				cells[y*spec.Width+x] = true
			case '.':
			default:
				return nil, fmt.Errorf("worldmap: grid row %d has invalid cell %q", i, c)
			}
		}
	}
	return NewGridMap(spec.Origin, spec.Resolution, spec.Width, spec.Height, cells)
}
