package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	apperrors "github.com/vsekai/signaling/internal/errors"
	"github.com/vsekai/signaling/internal/signaling"
)

// upgrader mirrors the teacher's upgrade configuration in
// api/cmd/main.go, widened to allow any origin: this server has no
// authentication or same-origin session concept of its own (spec.md §1,
// "out of scope: authentication/authorization").
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server exposes the signaling Engine over the wire at /socket/websocket,
// following the teacher's gin.New() + handler-group shape in
// api/cmd/main.go, trimmed to what this engine needs.
type Server struct {
	engine *signaling.Engine
	log    *zerolog.Logger
}

// NewServer wraps engine with an HTTP-facing handler.
func NewServer(engine *signaling.Engine, log *zerolog.Logger) *Server {
	return &Server{engine: engine, log: log}
}

// Register mounts the WebSocket upgrade route on router.
func (s *Server) Register(router gin.IRouter) {
	router.GET("/socket/websocket", s.handleUpgrade)
}

func (s *Server) handleUpgrade(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		c.Error(apperrors.BadRequest("websocket upgrade failed"))
		return
	}

	handler := NewConn(conn, s.engine, s.log)
	handler.Serve()
}
