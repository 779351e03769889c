// Package httpapi provides the signaling server's thin HTTP surface:
// liveness and version endpoints alongside the WebSocket upgrade route,
// following the teacher's gin handler-group shape in api/cmd/main.go.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// BuildInfo carries version metadata rendered by /version, set at link
// time the way the teacher's main.go reports its own build info.
type BuildInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
}

// Register mounts /healthz and /version on router.
func Register(router gin.IRouter, build BuildInfo) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, build)
	})
}
