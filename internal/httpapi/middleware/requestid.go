package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/aurumlabs/tokenchat/internal/common"
)

const RequestIDKey = "request_id"

// RequestID tags every request with an id, honoring one supplied by the
// caller so upstream proxies can correlate logs.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			generated, err := common.NewULID()
			if err == nil {
				id = generated
			}
		}
		if id != "" {
			c.Set(RequestIDKey, id)
			c.Writer.Header().Set("X-Request-ID", id)
		}
		c.Next()
	}
}
