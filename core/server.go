package core

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	headerRequestID  = "X-Request-ID"
	contextKeyUserID = "chat_user_id"
)

type ServerOptions struct {
	// CallbackEnabled serves GET /callback as the OAuth redirect target
	CallbackEnabled bool
}

type Server struct {
	commands *Commands
	config   *Config
	logger   *zap.Logger
	options  ServerOptions
}

func NewServer(commands *Commands, config *Config, logger *zap.Logger, options ServerOptions) *Server {
	return &Server{
		commands: commands,
		config:   config,
		logger:   logger,
		options:  options,
	}
}

// Router builds the gin engine with all routes and middleware.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(s.recovery(), requestID(), s.requestLogger())

	router.GET("/health", s.HandleHealth)
	router.POST("/commands", s.sessionAuth(), s.HandleCommand)
	if s.options.CallbackEnabled {
		router.GET("/callback", s.HandleCallback)
	}

	return router
}

type commandRequest struct {
	Text   string `json:"text" binding:"required"`
	Locale string `json:"locale"`
}

type commandResponse struct {
	Reply string `json:"reply"`
}

func (s *Server) HandleCommand(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	session := Session{
		UserID: c.GetString(contextKeyUserID),
		Locale: s.locale(req.Locale),
	}
	reply := s.commands.Dispatch(c.Request.Context(), session, req.Text)

	c.JSON(http.StatusOK, commandResponse{Reply: reply})
}

// HandleCallback completes a bind for the chat user carried in "state".
func (s *Server) HandleCallback(c *gin.Context) {
	chatUserID := c.Query("state")
	if chatUserID == "" {
		respondError(c, http.StatusBadRequest, "invalid_request", "state is required")
		return
	}

	session := Session{UserID: chatUserID, Locale: s.locale(c.Query("locale"))}
	reply := s.commands.Callback(c.Request.Context(), session, c.Query("code"))

	c.String(http.StatusOK, reply)
}

func (s *Server) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

func (s *Server) locale(requested string) string {
	if requested != "" {
		return requested
	}
	return s.config.Locale
}

// Middleware

func (s *Server) sessionAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := extractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			respondError(c, http.StatusUnauthorized, "invalid_token", "Invalid or missing authorization token")
			return
		}

		chatUserID, err := ValidateSessionToken(token, s.config)
		if err != nil {
			respondError(c, http.StatusUnauthorized, "invalid_token", "Invalid or missing authorization token")
			return
		}

		c.Set(contextKeyUserID, chatUserID)
		c.Next()
	}
}

func (s *Server) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("panic recovered",
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.Any("panic", r),
				)
				respondError(c, http.StatusInternalServerError, "internal_error", "Internal server error")
			}
		}()
		c.Next()
	}
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString("request_id")),
			zap.String("chat_user_id", c.GetString(contextKeyUserID)),
		)
	}
}

// Helper functions

func extractBearerToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", fmt.Errorf("missing authorization header")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", fmt.Errorf("invalid authorization header format")
	}

	return parts[1], nil
}

func respondError(c *gin.Context, statusCode int, errorCode, message string) {
	c.AbortWithStatusJSON(statusCode, gin.H{
		"error":   errorCode,
		"message": message,
	})
}
