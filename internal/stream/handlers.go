package stream

import (
	"context"
	"errors"

	"github.com/Auchit011/Vistagram-Application/internal/album"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// AlbumLookup resolves an album id, following merge redirects.
type AlbumLookup interface {
	GetAlbum(ctx context.Context, id string) (album.SharedAlbum, error)
}

// RegisterRoutes mounts GET /albums/ws/:albumID. Subscribing to an id that was merged away
// streams the surviving album.
func RegisterRoutes(r fiber.Router, hub *Hub, albums AlbumLookup) {
	r.Get("/albums/ws/:albumID", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		a, err := albums.GetAlbum(c.Context(), c.Params("albumID"))
		if errors.Is(err, album.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "album not found")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		userID, _ := c.Locals("user_id").(string)
		if !a.VisibleTo(userID) {
			return fiber.NewError(fiber.StatusNotFound, "album not found")
		}
		c.Locals("album_id", a.ID)
		return c.Next()
	}, websocket.New(func(c *websocket.Conn) {
		albumID, _ := c.Locals("album_id").(string)
		client := hub.Register(albumID)
		defer hub.Unregister(client)

		done := make(chan struct{})
		go func() {
			for msg := range client.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					break
				}
			}
			close(done)
		}()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
		hub.Unregister(client)
		<-done
	}))
}
