package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/jengzang/fleet-tracking-go/internal/models"
)

// viewportQuery binds ?swLat&swLng&neLat&neLng&zoom. Bounds are all or
// nothing; a west edge east of the east edge crosses the antimeridian.
type viewportQuery struct {
	SwLat *float64 `form:"swLat" binding:"omitempty,latitude"`
	SwLng *float64 `form:"swLng" binding:"omitempty,longitude"`
	NeLat *float64 `form:"neLat" binding:"omitempty,latitude"`
	NeLng *float64 `form:"neLng" binding:"omitempty,longitude"`
	Zoom  *float64 `form:"zoom" binding:"omitempty,min=0,max=30"`
}

var errPartialBounds = errors.New("swLat, swLng, neLat and neLng must be given together")

// bindViewport returns the requested viewport, falling back to current for
// whatever the query leaves out
func bindViewport(c *gin.Context, current models.Viewport) (models.Viewport, error) {
	var q viewportQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		return models.Viewport{}, err
	}

	vp := current
	bounds := []*float64{q.SwLat, q.SwLng, q.NeLat, q.NeLng}
	given := 0
	for _, b := range bounds {
		if b != nil {
			given++
		}
	}
	switch given {
	case 0:
	case len(bounds):
		if *q.SwLat > *q.NeLat {
			return models.Viewport{}, errors.New("swLat must not exceed neLat")
		}
		vp.SouthWest = models.LatLng{Lat: *q.SwLat, Lng: *q.SwLng}
		vp.NorthEast = models.LatLng{Lat: *q.NeLat, Lng: *q.NeLng}
	default:
		return models.Viewport{}, errPartialBounds
	}

	if q.Zoom != nil {
		vp.Zoom = *q.Zoom
	}
	return vp, nil
}
