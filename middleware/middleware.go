package middleware

import (
	"log"
	"net/http"
	"time"

	"forumai/config"
	"forumai/utils"

	"github.com/gin-gonic/gin"
)

// Logger is a Gin middleware for logging HTTP requests and responses.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		latency := time.Since(startTime)
		method := c.Request.Method
		uri := c.Request.RequestURI
		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()
		errorsStr := c.Errors.ByType(gin.ErrorTypePrivate).String()
		if errorsStr == "" {
			errorsStr = "None"
		}

		c.Writer.Header().Set("X-Response-Time", latency.String())

		log.Printf("[GIN] %s | %3d | %13v | %15s | %-7s %s\n      Errors: %s",
			startTime.Format("2006/01/02 - 15:04:05"),
			statusCode,
			latency,
			clientIP,
			method,
			uri,
			errorsStr,
		)
	}
}

// Cors is a Gin middleware for enabling Cross-Origin Resource Sharing.
func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, User-Agent")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// AjaxAuth authenticates AJAX dispatcher requests: the request must carry
// a valid nonce for its action string, and admin-only actions additionally
// require the admin token. Failures terminate the request with a 403
// envelope; the handler chain never runs.
func AjaxAuth(adminActions map[string]bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		action := c.Query("action")
		if action == "" {
			action = c.PostForm("action")
		}
		if action == "" {
			utils.SendJSONError(c, http.StatusBadRequest, "Missing action parameter.", nil)
			return
		}
		c.Set("action", action)

		nonce := c.GetHeader("X-Nonce")
		if nonce == "" {
			nonce = c.PostForm("_nonce")
		}
		if !utils.VerifyNonce(config.AppConfig.Auth.NonceSecret, action, nonce) {
			log.Printf("WARN: [Auth] Nonce verification failed for action '%s' from %s.", action, c.ClientIP())
			utils.SendJSONError(c, http.StatusForbidden, "Security check failed.", nil)
			return
		}

		if adminActions[action] {
			token := c.GetHeader("X-Admin-Token")
			if token == "" || token != config.AppConfig.Auth.AdminToken {
				log.Printf("WARN: [Auth] Capability check failed for admin action '%s' from %s.", action, c.ClientIP())
				utils.SendJSONError(c, http.StatusForbidden, "You do not have permission to perform this action.", nil)
				return
			}
		}

		c.Next()
	}
}
