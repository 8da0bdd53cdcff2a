package middleware

import (
	"edgetrade/internal/consts"
	"edgetrade/pkg/response"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
)

// NoCache 控制客户端不要使用缓存
func NoCache() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-cache, max-age=0, must-revalidate")
		c.Header("Expires", "Thu, 01 Jan 1970 00:00:00 GMT")
		c.Header("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
		c.Next()
	}
}

// Options 预检请求直接返回
func Options() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.ToUpper(c.Request.Method) != "OPTIONS" {
			c.Next()
			return
		}
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Header("Access-Control-Allow-Headers", "origin, content-type, accept, "+consts.AccountHeader)
		c.Header("Allow", "HEAD,GET,POST,PUT,DELETE,OPTIONS")
		c.Header("Content-Type", "application/json")
		c.AbortWithStatus(http.StatusOK)
	}
}

// Secure 添加安全控制和资源访问
func Secure() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-XSS-Protection", "1; mode=block")
		if c.Request.TLS != nil {
			c.Header("Strict-Transport-Security", "max-age=31536000")
		}
		c.Next()
	}
}

// RequestId 用来设置和透传requestId，客户端带了就沿用
func RequestId() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestId := c.GetHeader("X-Request-Id")
		if requestId == "" {
			requestId = uuid.NewString()
		}
		c.Header("X-Request-Id", requestId)
		c.Set(consts.RequestId, requestId)
		c.Next()
	}
}

// RequireAccount 交易接口必须带账户标识
func RequireAccount() gin.HandlerFunc {
	return func(c *gin.Context) {
		account := strings.TrimSpace(c.GetHeader(consts.AccountHeader))
		if account == "" {
			response.RequireAuthErr(c, nil)
			c.Abort()
			return
		}
		c.Set(consts.AccountID, account)
		c.Next()
	}
}

// 限制缓存的最大大小为 500，且是并发安全的 LRU 缓存
var reqCache, _ = lru.New(500)
var duplicateThreshold = 1 * time.Second

// AntiDuplicate 同一账户同一接口 1 秒内只接受一次，防止下单类请求重复提交
func AntiDuplicate() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString(consts.AccountID) + "|" + c.ClientIP() + c.Request.URL.Path
		if value, ok := reqCache.Get(key); ok {
			if time.Since(value.(time.Time)) < duplicateThreshold {
				response.TooManyRequests(c)
				c.Abort()
				return
			}
		}
		reqCache.Add(key, time.Now())
		c.Next()
	}
}
