package geospatial

import (
	"github.com/paulmach/orb"

	"github.com/samirrijal/destialarm/internal/core/domain"
)

// ToLineString converts a path into an orb line string ([lon, lat] order).
func ToLineString(path domain.GeoLineString) orb.LineString {
	ls := make(orb.LineString, 0, len(path.Coordinates))
	for _, c := range path.Coordinates {
		ls = append(ls, orb.Point{c.Lon, c.Lat})
	}
	return ls
}

// FromLineString converts an orb line string back into a path.
func FromLineString(ls orb.LineString) domain.GeoLineString {
	coords := make([]domain.GeoPoint, 0, len(ls))
	for _, p := range ls {
		coords = append(coords, domain.GeoPoint{Lat: p.Lat(), Lon: p.Lon()})
	}
	return domain.GeoLineString{Coordinates: coords}
}

// ToPoint converts a coordinate into an orb point.
func ToPoint(p domain.GeoPoint) orb.Point {
	return orb.Point{p.Lon, p.Lat}
}
