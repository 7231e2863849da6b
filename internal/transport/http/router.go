package http

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"team-quiz-service/internal/app"
	"team-quiz-service/internal/domain"
)

// NewRouter wires the REST surface and the websocket push channel.
func NewRouter(service *app.Service, adminToken string, logger zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	h := &Handler{service: service, log: logger}
	ws := NewWSHandler(service, logger)

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	router.POST("/join", h.Join)
	router.GET("/participant/:id", h.Resume)
	router.GET("/state", h.State)
	router.GET("/ws", ws.Serve)
	router.POST("/answer", h.SubmitAnswer)
	router.GET("/answer_status/:participant/:question", h.AnswerStatus)
	router.GET("/scoreboard", h.Scoreboard)

	admin := router.Group("/admin", requireAdmin(adminToken))
	admin.POST("/start", h.Start)
	admin.POST("/next", h.Next)
	admin.POST("/prev", h.Prev)
	admin.POST("/reveal", h.Reveal)
	admin.POST("/extend", h.Extend)
	admin.POST("/reset", h.Reset)
	admin.GET("/results", h.Results)
	admin.GET("/participants", h.Participants)

	return router
}

// requireAdmin checks the shared admin token, taken from the X-Admin-Token
// header or the admin_token query parameter. A mismatch yields an
// authorization error, distinct from validation failures, so the controller
// knows to re-enter credentials rather than retry.
func requireAdmin(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		supplied := c.GetHeader("X-Admin-Token")
		if supplied == "" {
			supplied = c.Query("admin_token")
		}
		if subtle.ConstantTimeCompare([]byte(supplied), []byte(token)) != 1 {
			writeError(c, domain.ErrUnauthorized)
			c.Abort()
			return
		}
		c.Next()
	}
}
