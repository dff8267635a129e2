// Package geojson resolves URAU city display names from the Eurostat URAU
// boundary GeoJSON (URAU_RG_*.geojson). Only feature properties are used;
// geometries are decoded but ignored.
package geojson

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/paulmach/orb/geojson"
)

const (
	codeProperty = "URAU_CODE"
	nameProperty = "URAU_NAME"
)

// NameIndex is an in-memory URAU code to name lookup.
// It implements domain.NameResolver.
type NameIndex struct {
	names map[string]string
}

// Load reads a URAU GeoJSON feature collection from path.
func Load(path string) (*NameIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read urau geojson: %w", err)
	}
	return Parse(data)
}

// Parse builds a NameIndex from raw GeoJSON. Features without a code or a
// name are ignored; the first name seen for a code wins.
func Parse(data []byte) (*NameIndex, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode urau geojson: %w", err)
	}

	idx := &NameIndex{names: make(map[string]string, len(fc.Features))}
	for _, f := range fc.Features {
		code := strings.ToUpper(strings.TrimSpace(f.Properties.MustString(codeProperty, "")))
		name := strings.TrimSpace(f.Properties.MustString(nameProperty, ""))
		if code == "" || name == "" {
			continue
		}
		if _, ok := idx.names[code]; !ok {
			idx.names[code] = name
		}
	}
	return idx, nil
}

// CityName returns the display name for a city code.
func (n *NameIndex) CityName(_ context.Context, code string) (string, bool) {
	name, ok := n.names[strings.ToUpper(code)]
	return name, ok
}

// Len returns the number of named cities.
func (n *NameIndex) Len() int {
	return len(n.names)
}
