// Package geo converts WGS84 longitude/latitude to a local East-North
// tangent plane in metres and back.
package geo

import (
	"math"

	"github.com/paulmach/orb"
)

const (
	wgs84A  = 6378137.0
	wgs84F  = 1 / 298.257223563
	wgs84E2 = wgs84F * (2 - wgs84F)
)

// LocalXY is a tangent plane anchored at (Lat0, Lon0), height 0.
type LocalXY struct {
	Lat0, Lon0 float64

	x0, y0, z0     float64
	sinLat, cosLat float64
	sinLon, cosLon float64
}

// NewLocalXY anchors the plane at the given origin in degrees.
func NewLocalXY(lat0, lon0 float64) LocalXY {
	l := LocalXY{Lat0: lat0, Lon0: lon0}
	l.x0, l.y0, l.z0 = toECEF(lat0, lon0)
	l.sinLat, l.cosLat = math.Sincos(lat0 * math.Pi / 180)
	l.sinLon, l.cosLon = math.Sincos(lon0 * math.Pi / 180)
	return l
}

// Centred anchors the plane at the mean position of pts.
func Centred(pts []orb.Point) LocalXY {
	if len(pts) == 0 {
		return NewLocalXY(0, 0)
	}
	var lat, lon float64
	for _, p := range pts {
		lon += p.Lon()
		lat += p.Lat()
	}
	n := float64(len(pts))
	return NewLocalXY(lat/n, lon/n)
}

// ToXY projects p to metres east (x) and north (y) of the origin.
func (l LocalXY) ToXY(p orb.Point) (x, y float64) {
	px, py, pz := toECEF(p.Lat(), p.Lon())
	dx, dy, dz := px-l.x0, py-l.y0, pz-l.z0
	x = -l.sinLon*dx + l.cosLon*dy
	y = -l.sinLat*l.cosLon*dx - l.sinLat*l.sinLon*dy + l.cosLat*dz
	return x, y
}

// ToGeo maps plane coordinates back to longitude/latitude. The point is
// taken on the tangent plane (up = 0) and its ellipsoidal height dropped.
func (l LocalXY) ToGeo(x, y float64) orb.Point {
	dx := -l.sinLon*x - l.sinLat*l.cosLon*y
	dy := l.cosLon*x - l.sinLat*l.sinLon*y
	dz := l.cosLat * y
	lat, lon := fromECEF(l.x0+dx, l.y0+dy, l.z0+dz)
	return orb.Point{lon, lat}
}

func toECEF(lat, lon float64) (x, y, z float64) {
	sinLat, cosLat := math.Sincos(lat * math.Pi / 180)
	sinLon, cosLon := math.Sincos(lon * math.Pi / 180)
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
	return n * cosLat * cosLon, n * cosLat * sinLon, n * (1 - wgs84E2) * sinLat
}

func fromECEF(x, y, z float64) (lat, lon float64) {
	p := math.Hypot(x, y)
	lon = math.Atan2(y, x)
	phi := math.Atan2(z, p*(1-wgs84E2))
	for i := 0; i < 8; i++ {
		s := math.Sin(phi)
		n := wgs84A / math.Sqrt(1-wgs84E2*s*s)
		h := p/math.Cos(phi) - n
		phi = math.Atan2(z, p*(1-wgs84E2*n/(n+h)))
	}
	return phi * 180 / math.Pi, lon * 180 / math.Pi
}
