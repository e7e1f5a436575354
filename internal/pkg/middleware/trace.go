package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TraceMiddleware 给每个请求一个追踪 ID，串联提交、入队与审核日志
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 优先沿用调用方传入的 TraceID，没有则生成新的
		traceID := c.GetHeader("X-Trace-ID")
		if traceID == "" {
			traceID = uuid.New().String()
		}

		// 设置到 context 和响应头
		c.Set("traceID", traceID)
		c.Header("X-Trace-ID", traceID)

		c.Next()
	}
}
