// Command tokend is a development media-token issuing service.
//
// It implements the token collaborator contract the callkit media
// controller speaks: POST /media-token with {channel_name, uid, role}
// returns a signed credential scoped to that channel and stream uid.
// Tokens are HS256 JWTs, which is sufficient for development and test
// deployments; production deployments normally front a vendor token
// service instead.
package main

import (
	"net/http"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config is loaded from the environment.
type Config struct {
	Addr     string        `env:"TOKEND_ADDR" envDefault:":8089"`
	Secret   string        `env:"TOKEND_SECRET,required"`
	TokenTTL time.Duration `env:"TOKEND_TOKEN_TTL" envDefault:"1h"`
	AppID    string        `env:"TOKEND_APP_ID" envDefault:"callkit-dev"`
}

type tokenRequest struct {
	ChannelName string `json:"channel_name" binding:"required"`
	UID         uint32 `json:"uid" binding:"required"`
	Role        string `json:"role"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type issuer struct {
	cfg Config
}

func (i *issuer) issueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "issueToken",
			"error":    err.Error(),
		}).Warn("Rejecting malformed token request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	role := req.Role
	if role == "" {
		role = "publisher"
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"app":     i.cfg.AppID,
		"channel": req.ChannelName,
		"uid":     req.UID,
		"role":    role,
		"iat":     now.Unix(),
		"exp":     now.Add(i.cfg.TokenTTL).Unix(),
		"jti":     uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(i.cfg.Secret))
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "issueToken",
			"error":    err.Error(),
		}).Error("Failed to sign media token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token signing failed"})
		return
	}

	logrus.WithFields(logrus.Fields{
		"function":     "issueToken",
		"channel_name": req.ChannelName,
		"uid":          req.UID,
		"role":         role,
	}).Info("Media token issued")

	c.JSON(http.StatusOK, tokenResponse{Token: signed})
}

func newRouter(cfg Config) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	iss := &issuer{cfg: cfg}
	router.POST("/media-token", iss.issueToken)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

func main() {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "main",
			"error":    err.Error(),
		}).Fatal("Failed to load configuration")
	}

	logrus.WithFields(logrus.Fields{
		"function":  "main",
		"addr":      cfg.Addr,
		"token_ttl": cfg.TokenTTL,
		"app_id":    cfg.AppID,
	}).Info("Starting media token service")

	if err := newRouter(cfg).Run(cfg.Addr); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "main",
			"error":    err.Error(),
		}).Fatal("Token service exited")
	}
}
