package handle

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Engines — GET /v1/engines.
func (h *Handle) Engines(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"engines":         h.engs.Names(),
		"max_image_bytes": h.svc.MaxImageBytes(),
	})
}

// Healthz — GET /healthz.
func (h *Handle) Healthz(c *gin.Context) {
	if h.Ping != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.Ping(ctx); err != nil {
			c.String(http.StatusServiceUnavailable, "db: not ok\n"+err.Error())
			return
		}
	}
	c.String(http.StatusOK, "ok")
}
