package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
)

/**
 * HTTP请求统计中间件
 * @param {string} component - worker组件名，如"api-server:3"
 * @description
 * - 统计worker收到的请求数量并按组件名分片
 * - 记录请求处理时间
 * - 区分成功和失败的请求
 */
func Middleware(component string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 记录请求开始时间
		start := time.Now()

		// 处理请求
		c.Next()

		// 计算请求处理时间
		duration := time.Since(start).Seconds()

		// 获取请求状态码
		statusCode := c.Writer.Status()

		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}

		IncrementRequestCount(component, path)
		RecordRequestDuration(component, path, duration)

		// 如果是错误请求（状态码 >= 400），增加错误请求计数
		if statusCode >= 400 {
			IncrementErrorCount(component, path)
		}
	}
}
