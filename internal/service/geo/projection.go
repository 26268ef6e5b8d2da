// internal/service/geo/projection.go

package geo

import (
	"fmt"
	"math"
	"sync"

	"github.com/go-spatial/proj/core"
	"github.com/go-spatial/proj/support"
	"github.com/paulmach/orb"

	// registers tmerc and the other operations with core
	_ "github.com/go-spatial/proj/operations"
)

// USSurveyFoot is the length of one US survey foot in meters
const USSurveyFoot = 1200.0 / 3937.0

// FloridaEastDefinition is NAD83 / Florida East, EPSG:2236, with its false
// origin in meters. Callers convert from survey feet with USSurveyFoot.
const FloridaEastDefinition = "+proj=tmerc +lat_0=24.33333333333333 +lon_0=-81 +k_0=0.999941177 +x_0=200000.0001016002 +y_0=0 +ellps=GRS80"

// Projection converts between projected and geographic coordinates
type Projection struct {
	conv         core.IConvertLPToXY
	unitToMeters float64
}

// NewProjection builds a projection from a proj string. unitToMeters is the
// size of one projected unit as callers pass it.
func NewProjection(definition string, unitToMeters float64) (*Projection, error) {
	ps, err := support.NewProjString(definition)
	if err != nil {
		return nil, fmt.Errorf("parse projection: %w", err)
	}
	_, op, err := core.NewSystem(ps)
	if err != nil {
		return nil, fmt.Errorf("build projection: %w", err)
	}
	conv, ok := op.(core.IConvertLPToXY)
	if !ok {
		return nil, fmt.Errorf("projection %q does not convert coordinates", definition)
	}
	return &Projection{conv: conv, unitToMeters: unitToMeters}, nil
}

// Forward projects geographic degrees to projected units
func (p *Projection) Forward(lat, lng float64) (x, y float64, err error) {
	xy, err := p.conv.Forward(&core.CoordLP{Lam: support.DDToR(lng), Phi: support.DDToR(lat)})
	if err != nil {
		return 0, 0, err
	}
	return xy.X / p.unitToMeters, xy.Y / p.unitToMeters, nil
}

// Inverse converts projected units to geographic degrees
func (p *Projection) Inverse(x, y float64) (lat, lng float64, err error) {
	lp, err := p.conv.Inverse(&core.CoordXY{X: x * p.unitToMeters, Y: y * p.unitToMeters})
	if err != nil {
		return 0, 0, err
	}
	return support.RToDD(lp.Phi), support.RToDD(lp.Lam), nil
}

// FloridaEast is the projection used by the city permit datasets
var FloridaEast = sync.OnceValues(func() (*Projection, error) {
	return NewProjection(FloridaEastDefinition, USSurveyFoot)
})

// RegionBounds is the sanity box for reprojected city records
var RegionBounds = orb.Bound{Min: orb.Point{-83, 25}, Max: orb.Point{-80, 30}}

// ReprojectStatePlane converts Florida East feet to latitude and longitude.
// ok is false for zero, non-finite, or out-of-region results.
func ReprojectStatePlane(x, y float64) (lat, lng float64, ok bool) {
	if x == 0 || y == 0 || !finite(x) || !finite(y) {
		return 0, 0, false
	}
	proj, err := FloridaEast()
	if err != nil {
		return 0, 0, false
	}
	lat, lng, err = proj.Inverse(x, y)
	if err != nil || !finite(lat) || !finite(lng) || !RegionBounds.Contains(orb.Point{lng, lat}) {
		return 0, 0, false
	}
	return lat, lng, true
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
