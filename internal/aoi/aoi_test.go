package aoi

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
)

// roughly 1km x 1km at the equator
const squarePolygon = `{"type":"Polygon","coordinates":[[[0,0],[0.009,0],[0.009,0.009],[0,0.009],[0,0]]]}`

func TestParse_Geometry(t *testing.T) {
	a, err := Parse([]byte(squarePolygon))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, ok := a.Geometry.(orb.Polygon); !ok {
		t.Fatalf("Geometry = %T, want orb.Polygon", a.Geometry)
	}
	ha := a.AreaHectares()
	if ha < 95 || ha > 105 {
		t.Errorf("AreaHectares = %.2f, want ~100", ha)
	}
	c := a.Centroid()
	if math.Abs(c.Lon()-0.0045) > 1e-9 || math.Abs(c.Lat()-0.0045) > 1e-9 {
		t.Errorf("Centroid = %v, want (0.0045, 0.0045)", c)
	}
}

func TestParse_FeatureCollectionTakesLastPolygon(t *testing.T) {
	fc := `{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[10,10],[11,10],[11,11],[10,11],[10,10]]]}},
		{"type":"Feature","properties":{},"geometry":` + squarePolygon + `},
		{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[5,5]}}
	]}`
	a, err := Parse([]byte(fc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	b := a.Bound()
	if b.Max.Lon() > 1 {
		t.Errorf("picked wrong feature, bound = %v", b)
	}
}

func TestParse_Feature(t *testing.T) {
	f := `{"type":"Feature","properties":{"name":"plot"},"geometry":{"type":"MultiPolygon","coordinates":[[[[0,0],[1,0],[1,1],[0,1],[0,0]]]]}}`
	a, err := Parse([]byte(f))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, ok := a.Geometry.(orb.MultiPolygon); !ok {
		t.Fatalf("Geometry = %T, want orb.MultiPolygon", a.Geometry)
	}
	coords, ok := a.Coordinates().([][][][2]float64)
	if !ok || len(coords) != 1 || len(coords[0][0]) != 5 {
		t.Errorf("Coordinates = %#v", a.Coordinates())
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"empty", "", ErrEmpty},
		{"point", `{"type":"Point","coordinates":[1,2]}`, ErrUnsupported},
		{"no polygons", `{"type":"FeatureCollection","features":[]}`, ErrUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if _, err := Parse([]byte(`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0.5]]]}`)); err == nil {
		t.Error("expected error for open ring")
	}
	if _, err := Parse([]byte(`{"type":"Polygon","coordinates":[[[0,0],[200,0],[1,1],[0,0]]]}`)); err == nil {
		t.Error("expected error for longitude out of range")
	}
	if _, err := Parse([]byte(`not json`)); err == nil {
		t.Error("expected error for invalid json")
	}
}

func TestDefault(t *testing.T) {
	a := Default()
	if err := a.Validate(); err != nil {
		t.Fatalf("Default().Validate: %v", err)
	}
	// pi * 10km^2 = 31416 ha; 64-gon is slightly smaller
	ha := a.AreaHectares()
	if ha < 30800 || ha > 31500 {
		t.Errorf("AreaHectares = %.0f, want ~31400", ha)
	}
	c := a.Centroid()
	if math.Abs(c.Lon()-DefaultCenter.Lon()) > 0.01 || math.Abs(c.Lat()-DefaultCenter.Lat()) > 0.01 {
		t.Errorf("Centroid = %v, want near %v", c, DefaultCenter)
	}
	if _, err := a.GeoJSON(); err != nil {
		t.Errorf("GeoJSON: %v", err)
	}
}
