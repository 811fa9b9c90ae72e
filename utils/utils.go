package utils

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// SendJSONError sends the standard error envelope and logs the internal
// error. For 5xx errors a generic public message is sent while the actual
// internalError stays in the log.
func SendJSONError(c *gin.Context, statusCode int, publicMsg string, internalError error) {
	if internalError != nil {
		log.Printf("ERROR: Handler error: status_code=%d, public_message='%s', internal_error='%v', path='%s'",
			statusCode, publicMsg, internalError, c.Request.URL.Path)
	} else {
		log.Printf("INFO: Handler response: status_code=%d, public_message='%s', path='%s'",
			statusCode, publicMsg, c.Request.URL.Path)
	}

	if statusCode >= http.StatusInternalServerError {
		if publicMsg == "" || (internalError != nil && publicMsg == internalError.Error()) {
			publicMsg = "An unexpected error occurred. Please try again later."
		}
	}

	c.AbortWithStatusJSON(statusCode, gin.H{"success": false, "data": gin.H{"error": publicMsg}})
}

// SendJSONSuccess sends the standard success envelope.
func SendJSONSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

// Nonce tick length. A nonce is accepted for the current and the previous
// tick, so tokens stay valid between page load and submit.
const nonceTick = 12 * time.Hour

// CreateNonce derives a short-lived token tying a secret to an action
// string for the current time bucket.
func CreateNonce(secret, action string) string {
	return nonceFor(secret, action, time.Now())
}

// VerifyNonce checks a token against the current and previous tick.
func VerifyNonce(secret, action, token string) bool {
	if token == "" {
		return false
	}
	now := time.Now()
	if nonceEqual(token, nonceFor(secret, action, now)) {
		return true
	}
	return nonceEqual(token, nonceFor(secret, action, now.Add(-nonceTick)))
}

func nonceEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func nonceFor(secret, action string, t time.Time) string {
	bucket := t.Unix() / int64(nonceTick/time.Second)
	sum := md5.Sum([]byte(fmt.Sprintf("%s|%s|%d", secret, action, bucket)))
	return hex.EncodeToString(sum[:])[:16]
}

// FormatTime renders a timestamp the way the admin screens display it.
func FormatTime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}
