package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/AchrafSoltani/onion"
)

// responseTime sets X-Response-Time on the way out.
func responseTime(c *onion.Context, next onion.Next) error {
	start := time.Now()
	err := next()
	c.Response.Set("X-Response-Time", time.Since(start).String())
	return err
}

// routes dispatches on the request path. Everything under /api/ runs behind
// auth first, so the chain for those requests is composed once up front.
func routes(auth onion.HandlerFunc) onion.HandlerFunc {
	api := onion.MustCompose(auth, whoami)

	return func(c *onion.Context, next onion.Next) error {
		path := c.Request.Path()
		switch {
		case path == "/health":
			return c.JSON(http.StatusOK, onion.M{"status": "ok", "version": onion.Version})

		case path == "/":
			if t, _ := c.Request.Accepts("text", "html"); t == "html" {
				return c.HTML(http.StatusOK, "<h1>onion</h1>")
			}
			return c.String(http.StatusOK, "onion")

		case path == "/back":
			c.Redirect("back", "/")
			return nil

		case path == "/download":
			c.Response.Attachment("hello.txt")
			c.Response.SetBody(strings.NewReader("hello from a stream\n"))
			return nil

		case path == "/teapot":
			return c.Throw(http.StatusTeapot, "")

		case strings.HasPrefix(path, "/api/"):
			return api(c, next)
		}

		return next()
	}
}

func whoami(c *onion.Context, next onion.Next) error {
	claims, _ := c.Get("claims").(jwt.MapClaims)
	sub, _ := claims.GetSubject()
	return c.JSON(http.StatusOK, onion.M{"subject": sub, "request_id": c.GetString("request_id")})
}
