package http

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
)

// NewRouter assembles the gin engine. Handlers inherit a default request
// deadline so a caller that never sets one cannot hold a per-staff section
// open indefinitely.
func NewRouter(h *Handler, requestTimeout time.Duration) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), withRequestTimeout(requestTimeout))
	h.Register(r)
	return r
}

func withRequestTimeout(timeout time.Duration) gin.HandlerFunc {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
