package middleware

import "github.com/gin-gonic/gin"

type globalMiddleware struct{}

// NewMiddleware 全局中间件，需要在业务路由之前加载
func NewMiddleware() *globalMiddleware {
	return &globalMiddleware{}
}

func (m *globalMiddleware) Load(g *gin.Engine) {
	g.Use(gin.Recovery(), Options(), Secure(), NoCache(), RequestId(), Logger)
}
