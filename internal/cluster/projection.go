package cluster

import (
	"math"

	"github.com/jengzang/fleet-tracking-go/internal/models"
)

// maxMercatorLat is the latitude at which Web Mercator becomes a square
const maxMercatorLat = 85.05112878

// lngX projects a longitude into [0,1] Mercator unit space
func lngX(lng float64) float64 {
	return lng/360 + 0.5
}

// latY projects a latitude into [0,1] Mercator unit space, north at 0
func latY(lat float64) float64 {
	lat = math.Max(-maxMercatorLat, math.Min(maxMercatorLat, lat))
	sin := math.Sin(lat * math.Pi / 180)
	y := 0.5 - 0.25*math.Log((1+sin)/(1-sin))/math.Pi
	return math.Max(0, math.Min(1, y))
}

func xLng(x float64) float64 {
	return (x - 0.5) * 360
}

func yLat(y float64) float64 {
	y2 := (180 - y*360) * math.Pi / 180
	return 360*math.Atan(math.Exp(y2))/math.Pi - 90
}

// unitRadius converts a pixel radius into Mercator unit space at zoom
func unitRadius(radiusPx, tileSize float64, zoom int) float64 {
	return radiusPx / (tileSize * math.Pow(2, float64(zoom)))
}

// ViewportAround returns the bounds visible on a widthPx by heightPx screen
// centered on center at zoom. Bounds crossing the antimeridian come back
// with a west edge east of the east edge.
func ViewportAround(center models.LatLng, zoom, widthPx, heightPx, tileSize float64) models.Viewport {
	scale := tileSize * math.Pow(2, zoom)
	cx, cy := lngX(wrapLng(center.Lng)), latY(center.Lat)
	halfW, halfH := widthPx/2/scale, heightPx/2/scale

	west, east := -180.0, 180.0
	if halfW < 0.5 {
		west, east = wrapLng(xLng(cx-halfW)), wrapLng(xLng(cx+halfW))
	}

	return models.Viewport{
		SouthWest: models.LatLng{Lat: yLat(math.Min(1, cy+halfH)), Lng: west},
		NorthEast: models.LatLng{Lat: yLat(math.Max(0, cy-halfH)), Lng: east},
		Zoom:      zoom,
	}
}

// FitZoom returns the deepest integer zoom, at most maxZoom, at which the
// bounds fit on a widthPx by heightPx screen
func FitZoom(sw, ne models.LatLng, widthPx, heightPx, tileSize float64, maxZoom int) int {
	dx := lngX(ne.Lng) - lngX(sw.Lng)
	if dx < 0 {
		dx++
	}
	dy := latY(sw.Lat) - latY(ne.Lat)

	for z := 0; z <= maxZoom; z++ {
		scale := tileSize * math.Pow(2, float64(z))
		if dx*scale > widthPx || dy*scale > heightPx {
			return max(z-1, 0)
		}
	}
	return maxZoom
}
