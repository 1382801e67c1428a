package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

func newApp(mw fiber.Handler) *fiber.App {
	app := fiber.New()
	app.Get("/private", mw, func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		return c.SendString(userID)
	})
	return app
}

func get(t *testing.T, app *fiber.App, authHeader string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	return resp
}

func TestJWTMiddleware(t *testing.T) {
	app := newApp(JWTMiddleware("secret"))

	// missing token
	if resp := get(t, app, ""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized")
	}

	// valid token
	token, err := SignToken("secret", "user-1", time.Minute)
	if err != nil {
		t.Fatalf("sign error: %v", err)
	}
	if resp := get(t, app, "Bearer "+token); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected ok")
	}

	// wrong secret
	other, _ := SignToken("other", "user-1", time.Minute)
	if resp := get(t, app, "Bearer "+other); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized for foreign token")
	}

	// expired
	expired, _ := SignToken("secret", "user-1", -time.Minute)
	if resp := get(t, app, "Bearer "+expired); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized for expired token")
	}

	// no user id
	blank, _ := SignToken("secret", "", time.Minute)
	if resp := get(t, app, "Bearer "+blank); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized for token without user")
	}
}

func TestJWTMiddlewareInvalidParse(t *testing.T) {
	old := parseMiddlewareClaimsFn
	parseMiddlewareClaimsFn = func(_ string, _ jwt.Claims, _ jwt.Keyfunc, _ ...jwt.ParserOption) (*jwt.Token, error) {
		return &jwt.Token{Valid: false, Claims: &Claims{UserID: "u"}}, nil
	}
	defer func() { parseMiddlewareClaimsFn = old }()

	app := newApp(JWTMiddleware("secret"))
	if resp := get(t, app, "Bearer anything"); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized")
	}
}

func TestOptionalJWTMiddleware(t *testing.T) {
	app := newApp(OptionalJWTMiddleware("secret"))

	if resp := get(t, app, ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected anonymous access")
	}

	token, _ := SignToken("secret", "user-9", time.Minute)
	resp := get(t, app, "Bearer "+token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected ok")
	}

	if resp := get(t, app, "Bearer garbage"); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected invalid token to be rejected")
	}
}

func TestBearerFromHeader(t *testing.T) {
	if bearerFromHeader("Bearer abc") != "abc" {
		t.Fatalf("expected token")
	}
	if bearerFromHeader("bearer abc") != "abc" {
		t.Fatalf("expected case-insensitive scheme")
	}
	if bearerFromHeader("Basic abc") != "" || bearerFromHeader("") != "" {
		t.Fatalf("expected empty token")
	}
}
