package product

import (
	"io"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
)

func makeAppWithProductHandler(h *Handler) *fiber.App {
	app := fiber.New()
	h.RegisterPublicRoutes(app)
	app.Use(func(c *fiber.Ctx) error {
		if v := c.Get("X-User-ID"); v != "" {
			id, err := strconv.Atoi(v)
			if err == nil {
				claims := jwt.MapClaims{"user_id": id, "role": c.Get("X-User-Role")}
				c.Locals("user", &jwt.Token{Claims: claims})
			}
		}
		return c.Next()
	})
	h.RegisterProtectedRoutes(app)
	return app
}

func TestProductRoutes(t *testing.T) {
	repo := NewInMemoryRepository([]Product{{ID: 12, Name: "Linen Shirt", Price: 899, Stock: 3}})
	app := makeAppWithProductHandler(NewHandler(NewService(repo)))

	res, _ := app.Test(httptest.NewRequest("GET", "/api/v1/products/12", nil))
	if res.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	b, _ := io.ReadAll(res.Body)
	if !strings.Contains(string(b), `"stock":3`) {
		t.Fatalf("unexpected body: %s", string(b))
	}

	res2, _ := app.Test(httptest.NewRequest("GET", "/api/v1/products/13", nil))
	if res2.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", res2.StatusCode)
	}

	// customers may not edit products
	req := httptest.NewRequest("PATCH", "/api/v1/products/12", strings.NewReader(`{"price":999}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "5")
	res3, _ := app.Test(req)
	if res3.StatusCode != fiber.StatusForbidden {
		t.Fatalf("expected 403 for customer, got %d", res3.StatusCode)
	}

	req4 := httptest.NewRequest("PATCH", "/api/v1/products/12", strings.NewReader(`{"price":999}`))
	req4.Header.Set("Content-Type", "application/json")
	req4.Header.Set("X-User-ID", "1")
	req4.Header.Set("X-User-Role", "admin")
	res4, _ := app.Test(req4)
	if res4.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", res4.StatusCode)
	}
	b4, _ := io.ReadAll(res4.Body)
	if !strings.Contains(string(b4), `"price":999`) {
		t.Fatalf("price not updated: %s", string(b4))
	}
}
