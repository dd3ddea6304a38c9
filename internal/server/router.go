package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/vitalforms/collab-backend/internal/collab"
	"go.uber.org/zap"
)

var errMissingCollabService = errors.New("collab service dependency required")

// Dependencies wires the HTTP surface to the collaboration engine.
type Dependencies struct {
	Collab *collab.Service
	Logger *zap.Logger
	// AllowedOrigins restricts websocket upgrades and CORS. A single "*"
	// entry (the default) allows any origin.
	AllowedOrigins []string
}

// NewHTTPHandler builds the gin router: a health probe, the websocket
// endpoint editors connect to, and a read-only room introspection view.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Collab == nil {
		return nil, errMissingCollabService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		collab: deps.Collab,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(origins),
		},
	}

	router.GET("/healthz", handler.handleHealthz)
	router.GET("/ws", handler.handleWebSocket)
	router.GET("/rooms/:id", handler.handleRoomInfo)

	return router, nil
}

type httpHandler struct {
	collab   *collab.Service
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func (h *httpHandler) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleRoomInfo(c *gin.Context) {
	info, ok := h.collab.RoomInfo(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room_not_found"})
		return
	}
	c.JSON(http.StatusOK, info)
}

// originChecker builds the upgrade-time origin check. Browsers send an
// Origin header; non-browser clients that omit it are accepted.
func originChecker(allowed []string) func(r *http.Request) bool {
	allowAll := false
	for _, origin := range allowed {
		if origin == "*" {
			allowAll = true
		}
	}
	return func(r *http.Request) bool {
		if allowAll {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, candidate := range allowed {
			if origin == candidate {
				return true
			}
		}
		return false
	}
}
