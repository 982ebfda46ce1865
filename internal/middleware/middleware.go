package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"chamber/internal/logger"

	"github.com/gin-gonic/gin"
)

// Context helpers for the authenticated wallet address. The key lives
// in the logger package so logger.WithContext sees the same value.

func ContextWithAccount(ctx context.Context, account string) context.Context {
	return logger.ContextWithAccount(ctx, account)
}

func AccountFromContext(ctx context.Context) (string, bool) {
	return logger.AccountFromContext(ctx)
}

// CORS middleware for cross-origin requests
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, X-Wallet-Address")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}

		c.Next()
	}
}

// Logger middleware for structured request logging
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		latency := time.Since(start)
		account, exists := c.Get("account")

		logFields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status_code", c.Writer.Status(),
			"latency_ms", latency.Milliseconds(),
			"client_ip", c.ClientIP(),
			"user_agent", c.Request.UserAgent(),
		}

		if exists {
			logFields = append(logFields, "account", account)
		}

		if c.Writer.Status() >= 400 {
			if len(c.Errors) > 0 {
				logFields = append(logFields, "error", c.Errors.String())
			}
			slog.Error("Request completed with error", logFields...)
		}
	}
}

// Recovery middleware with detailed panic logging
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		slog.Error("PANIC recovered",
			"panic", recovered,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"query", c.Request.URL.RawQuery,
			"client_ip", c.ClientIP(),
			"user_agent", c.Request.UserAgent(),
			"headers", c.Request.Header,
		)

		if !c.Writer.Written() {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Internal server error",
			})
		}
	})
}

// WalletAuth identifies the caller by the X-Wallet-Address header. The
// service never holds keys; the wallet bridge signs on the caller's
// behalf, so the header is identification, not proof of ownership.
func WalletAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		account := strings.TrimSpace(c.GetHeader("X-Wallet-Address"))
		if account == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing X-Wallet-Address header"})
			return
		}

		account = strings.ToLower(account)
		c.Set("account", account)
		c.Request = c.Request.WithContext(ContextWithAccount(c.Request.Context(), account))

		c.Next()
	}
}
