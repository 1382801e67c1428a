package album

import (
	"context"
	"errors"
	"strconv"

	"github.com/Auchit011/Vistagram-Application/internal/shared/geo"

	"github.com/gofiber/fiber/v2"
)

const (
	defaultNearbyRadiusM = 1000
	nearbyLimit          = 50
)

// Reader is the read path exposed to API consumers.
type Reader interface {
	GetAlbum(ctx context.Context, id string) (SharedAlbum, error)
	Nearby(ctx context.Context, center geo.Point, radiusM float64, limit int) ([]SharedAlbum, error)
}

func RegisterRoutes(r fiber.Router, svc Reader, authMiddleware fiber.Handler) {
	r.Get("/:id", authMiddleware, func(c *fiber.Ctx) error {
		a, err := svc.GetAlbum(c.Context(), c.Params("id"))
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "album not found")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		userID, _ := c.Locals("user_id").(string)
		if !a.VisibleTo(userID) {
			return fiber.NewError(fiber.StatusNotFound, "album not found")
		}
		return c.JSON(a)
	})

	r.Get("/", authMiddleware, func(c *fiber.Ctx) error {
		if c.Query("lat") == "" || c.Query("lng") == "" {
			return fiber.NewError(fiber.StatusBadRequest, "lat & lng required")
		}
		lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
		lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
		if errLat != nil || errLng != nil {
			return fiber.NewError(fiber.StatusBadRequest, "lat & lng must be numbers")
		}
		center := geo.Point{Lng: lng, Lat: lat}
		if err := center.Validate(); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		radius, _ := strconv.ParseFloat(c.Query("radius"), 64)
		if radius <= 0 {
			radius = defaultNearbyRadiusM
		}

		albums, err := svc.Nearby(c.Context(), center, radius, nearbyLimit)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		userID, _ := c.Locals("user_id").(string)
		visible := make([]SharedAlbum, 0, len(albums))
		for _, a := range albums {
			if a.VisibleTo(userID) {
				visible = append(visible, a)
			}
		}
		return c.JSON(visible)
	})
}
