// Package aoi parses and measures the user's area of interest.
package aoi

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

const squareMetresPerHectare = 10_000

var (
	ErrEmpty       = errors.New("area of interest is empty")
	ErrUnsupported = errors.New("area of interest must be a Polygon or MultiPolygon")
)

// Default example AOI: 10 km around a point in the Peruvian Amazon.
var (
	DefaultCenter = orb.Point{-75.5, -8.5}
	DefaultRadius = 10_000.0 // metres
)

const DefaultWarning = "No area drawn; using the example area (10 km around -75.5, -8.5)."

// AOI is a validated area of interest.
type AOI struct {
	Geometry orb.Geometry // orb.Polygon or orb.MultiPolygon
}

// Parse accepts a GeoJSON Geometry, Feature or FeatureCollection. For collections
// the last polygonal feature wins, matching the most recently drawn shape.
func Parse(data []byte) (*AOI, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}

	var g orb.Geometry
	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("decode feature collection: %w", err)
		}
		for i := len(fc.Features) - 1; i >= 0; i-- {
			if isPolygonal(fc.Features[i].Geometry) {
				g = fc.Features[i].Geometry
				break
			}
		}
		if g == nil {
			return nil, ErrUnsupported
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("decode feature: %w", err)
		}
		g = f.Geometry
	default:
		geom, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("decode geometry: %w", err)
		}
		g = geom.Geometry()
	}

	a := &AOI{Geometry: g}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

func isPolygonal(g orb.Geometry) bool {
	switch g.(type) {
	case orb.Polygon, orb.MultiPolygon:
		return true
	}
	return false
}

// Validate checks geometry type, ring closure and coordinate ranges.
func (a *AOI) Validate() error {
	if a == nil || a.Geometry == nil {
		return ErrEmpty
	}
	switch g := a.Geometry.(type) {
	case orb.Polygon:
		return validatePolygon(g)
	case orb.MultiPolygon:
		if len(g) == 0 {
			return ErrEmpty
		}
		for i, p := range g {
			if err := validatePolygon(p); err != nil {
				return fmt.Errorf("polygon %d: %w", i, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("%w (got %s)", ErrUnsupported, a.Geometry.GeoJSONType())
	}
}

func validatePolygon(p orb.Polygon) error {
	if len(p) == 0 {
		return ErrEmpty
	}
	for i, r := range p {
		if len(r) < 4 {
			return fmt.Errorf("ring %d has %d positions, need at least 4", i, len(r))
		}
		if !r.Closed() {
			return fmt.Errorf("ring %d is not closed", i)
		}
		for _, pt := range r {
			if pt.Lon() < -180 || pt.Lon() > 180 || pt.Lat() < -90 || pt.Lat() > 90 {
				return fmt.Errorf("coordinate (%v, %v) out of range", pt.Lon(), pt.Lat())
			}
		}
	}
	return nil
}

// AreaHectares returns the geodesic area of the AOI.
func (a *AOI) AreaHectares() float64 {
	return math.Abs(geo.Area(a.Geometry)) / squareMetresPerHectare
}

// Centroid returns the planar centroid in lon/lat.
func (a *AOI) Centroid() orb.Point {
	c, _ := planar.CentroidArea(a.Geometry)
	return c
}

func (a *AOI) Bound() orb.Bound {
	return a.Geometry.Bound()
}

// GeoJSON encodes the geometry as a bare GeoJSON geometry object.
func (a *AOI) GeoJSON() ([]byte, error) {
	return json.Marshal(geojson.NewGeometry(a.Geometry))
}

func (a *AOI) IsMulti() bool {
	_, ok := a.Geometry.(orb.MultiPolygon)
	return ok
}

// Coordinates returns the raw nested coordinate arrays, as used by
// geometry constructors on the imagery platforms.
func (a *AOI) Coordinates() any {
	switch g := a.Geometry.(type) {
	case orb.Polygon:
		return polygonCoords(g)
	case orb.MultiPolygon:
		out := make([][][][2]float64, len(g))
		for i, p := range g {
			out[i] = polygonCoords(p)
		}
		return out
	}
	return nil
}

func polygonCoords(p orb.Polygon) [][][2]float64 {
	out := make([][][2]float64, len(p))
	for i, r := range p {
		ring := make([][2]float64, len(r))
		for j, pt := range r {
			ring[j] = [2]float64{pt[0], pt[1]}
		}
		out[i] = ring
	}
	return out
}

// Circle approximates a geodesic buffer around center with a polygon.
func Circle(center orb.Point, radius float64, segments int) *AOI {
	if segments < 8 {
		segments = 8
	}
	ring := make(orb.Ring, 0, segments+1)
	for i := 0; i < segments; i++ {
		// counter-clockwise exterior ring
		bearing := 360 * float64(segments-i) / float64(segments)
		ring = append(ring, geo.PointAtBearingAndDistance(center, bearing, radius))
	}
	ring = append(ring, ring[0])
	return &AOI{Geometry: orb.Polygon{ring}}
}

// Default returns the example area used when the user has not drawn anything.
func Default() *AOI {
	return Circle(DefaultCenter, DefaultRadius, 64)
}
