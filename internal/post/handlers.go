package post

import (
	"errors"

	"github.com/Auchit011/Vistagram-Application/internal/shared/geo"

	"github.com/gofiber/fiber/v2"
)

type createRequest struct {
	Caption      string   `json:"caption"`
	ImageURL     string   `json:"image_url"`
	Lat          *float64 `json:"lat"`
	Lng          *float64 `json:"lng"`
	LocationName string   `json:"location_name"`
}

type createResponse struct {
	Post
	SharedAlbumID string `json:"shared_album_id,omitempty"`
}

func RegisterRoutes(r fiber.Router, store Store, hook Hook, authMiddleware fiber.Handler) {
	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		if userID == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "user required")
		}

		var req createRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.ImageURL == "" {
			return fiber.NewError(fiber.StatusBadRequest, "image_url required")
		}
		if (req.Lat == nil) != (req.Lng == nil) {
			return fiber.NewError(fiber.StatusBadRequest, "lat and lng must be sent together")
		}

		input := Post{
			UserID:       userID,
			Caption:      req.Caption,
			ImageURL:     req.ImageURL,
			LocationName: req.LocationName,
		}
		if req.Lat != nil {
			point := geo.Point{Lng: *req.Lng, Lat: *req.Lat}
			if err := point.Validate(); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			input.Location = &point
		}

		created, err := store.CreatePost(c.Context(), input)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}

		resp := createResponse{Post: created}
		if hook != nil && created.Clusterable() {
			if albumID, ok := hook.PostCreated(c.Context(), created); ok {
				resp.SharedAlbumID = albumID
			}
		}
		return c.Status(fiber.StatusCreated).JSON(resp)
	})

	r.Get("/:id", authMiddleware, func(c *fiber.Ctx) error {
		p, err := store.GetPost(c.Context(), c.Params("id"))
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "post not found")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(p)
	})
}
