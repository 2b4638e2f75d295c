package ingest

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// SignatureConfig holds HMAC verification settings for the ticket source.
type SignatureConfig struct {
	// SignatureHeader is the name of the header containing the signature.
	SignatureHeader string
	// SignaturePrefix is the prefix in the header value (e.g., "sha256=").
	SignaturePrefix string
	// Secret is the secret key for HMAC verification.
	Secret []byte
}

// DefaultSignatureConfig returns the HMAC config for ticket-event deliveries.
func DefaultSignatureConfig(secret string) SignatureConfig {
	return SignatureConfig{
		SignatureHeader: "X-Ticket-Signature",
		SignaturePrefix: "sha256=",
		Secret:          []byte(secret),
	}
}

// VerifyHMAC verifies the HMAC-SHA256 signature of a request body using
// constant-time comparison.
func VerifyHMAC(body []byte, signature string, secret []byte) bool {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ComputeHMAC computes the hex-encoded HMAC-SHA256 signature of the given
// body.
func ComputeHMAC(body []byte, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureMiddleware creates a Gin middleware for HMAC signature
// verification of ticket-event deliveries. If the secret is empty, the
// middleware skips verification (development mode).
func SignatureMiddleware(config SignatureConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip if no secret configured (development mode)
		if len(config.Secret) == 0 {
			c.Next()
			return
		}

		sigHeader := c.GetHeader(config.SignatureHeader)
		if sigHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "missing signature header",
			})
			return
		}

		signature := strings.TrimPrefix(sigHeader, config.SignaturePrefix)
		if signature == sigHeader {
			// Prefix was not present
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "invalid signature format",
			})
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "badRequest",
				"message": "failed to read request body",
			})
			return
		}

		// Restore body for downstream handlers
		c.Request.Body = io.NopCloser(bytes.NewBuffer(body))

		if !VerifyHMAC(body, signature, config.Secret) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "invalid signature",
			})
			return
		}

		c.Next()
	}
}
