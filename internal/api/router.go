// Package api serves the inventory over HTTP for the UI layer: asset reads,
// sighting previews, human overrides and metrics.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/sirupsen/logrus"

	"assetrecon/internal/api/handlers"
	"assetrecon/internal/metrics"
)

func init() {
	// keep numbers as json.Number so values are validated as reported
	binding.EnableDecoderUseNumber = true
}

// NewRouter wires the handlers into a gin engine
func NewRouter(h *handlers.AssetHandler, m *metrics.Collector, log logrus.FieldLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))

	r.GET("/assets", h.GetAssets)
	r.GET("/assets/:id", h.GetAsset)
	r.POST("/assets/:id/override", h.Override)
	r.POST("/preview", h.Preview)
	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}
	return r
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("HTTP request")
	}
}

// Serve runs the HTTP server on addr until ctx is done
func Serve(ctx context.Context, addr string, handler http.Handler, log logrus.FieldLogger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("listen", addr).Info("API server started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
