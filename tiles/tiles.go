// Package tiles turns a registered scan area into the grid of capture
// tiles the orchestrator walks. Everything here is pure geometry with no
// side effects, so identical input always produces an identical,
// identically-ordered tile list.
package tiles

import (
	"math"

	"marine-scan-pipeline/models"
)

const (
	// KmPerDegreeLat is the equirectangular approximation of one degree
	// of latitude. Longitude shrinks by cos(lat) toward the poles.
	KmPerDegreeLat = 111.32

	// TileSizeDegrees is the tile edge length, roughly 1 km at the equator.
	TileSizeDegrees = 0.009

	// MaxLatitude bounds area centers away from the poles, where the
	// cos(lat) correction blows up. Matches the coverage limit of the
	// imagery missions.
	MaxLatitude = 85.0

	// MaxTiles caps the grid size of a single area, about a 250 km
	// radius. Registrations above it are rejected and Generate refuses
	// to materialize them.
	MaxTiles = 250000
)

// BoundingBox computes a bounding box symmetric around the given center,
// sized to contain a circle of radiusKm.
func BoundingBox(centerLat, centerLon, radiusKm float64) models.BBox {
	latDelta := radiusKm / KmPerDegreeLat
	lonDelta := radiusKm / (KmPerDegreeLat * math.Cos(centerLat*math.Pi/180))
	return models.BBox{
		LatMin: centerLat - latDelta,
		LonMin: centerLon - lonDelta,
		LatMax: centerLat + latDelta,
		LonMax: centerLon + lonDelta,
	}
}

// Generate partitions the bbox into TileSizeDegrees tiles in row-major
// order (y outer, x inner). The last row and column are clipped to the
// bbox edge, so the tiles cover the bbox exactly with no overshoot.
// A degenerate or oversized bbox yields an empty grid rather than an
// unbounded allocation.
func Generate(bbox models.BBox) []models.Tile {
	nx := countAxis(bbox.LonMax - bbox.LonMin)
	ny := countAxis(bbox.LatMax - bbox.LatMin)
	if nx <= 0 || ny <= 0 || nx > MaxTiles || ny > MaxTiles || nx*ny > MaxTiles {
		return nil
	}

	result := make([]models.Tile, 0, nx*ny)
	for y := 0; y < ny; y++ {
		latMin := bbox.LatMin + float64(y)*TileSizeDegrees
		latMax := math.Min(latMin+TileSizeDegrees, bbox.LatMax)
		for x := 0; x < nx; x++ {
			lonMin := bbox.LonMin + float64(x)*TileSizeDegrees
			lonMax := math.Min(lonMin+TileSizeDegrees, bbox.LonMax)
			result = append(result, models.Tile{
				X: x,
				Y: y,
				BBox: models.BBox{
					LatMin: latMin,
					LonMin: lonMin,
					LatMax: latMax,
					LonMax: lonMax,
				},
			})
		}
	}
	return result
}

// Count returns how many tiles the bbox spans without materializing
// them. The count saturates once either axis exceeds MaxTiles, so
// callers can compare against MaxTiles without integer overflow.
func Count(bbox models.BBox) int {
	nx := countAxis(bbox.LonMax - bbox.LonMin)
	ny := countAxis(bbox.LatMax - bbox.LatMin)
	if nx > MaxTiles || ny > MaxTiles {
		return MaxTiles + 1
	}
	return nx * ny
}

func countAxis(span float64) int {
	if span <= 0 || math.IsNaN(span) {
		return 0
	}
	n := math.Ceil(span / TileSizeDegrees)
	// Saturate before the float-to-int conversion, which is undefined
	// for values out of int range.
	if n > MaxTiles {
		return MaxTiles + 1
	}
	return int(n)
}
