package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "ok",
		"data":    data,
	})
}

func Fail(c *gin.Context, httpStatus int, code int, msg string) {
	c.JSON(httpStatus, gin.H{
		"code":    code,
		"message": msg,
		"data":    nil,
	})
}

// FailWithReset is Fail plus the quota reset time, for rate-limit denials.
func FailWithReset(c *gin.Context, httpStatus int, code int, msg string, reset any) {
	c.JSON(httpStatus, gin.H{
		"code":       code,
		"message":    msg,
		"data":       nil,
		"reset_time": reset,
	})
}
