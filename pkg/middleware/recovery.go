package middleware

import (
	"log"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
)

// Recovery はハンドラのパニックを捕捉するGinミドルウェアを返す。
// 要求したユーザーとスタックトレースをログに残し、まだ何も書き込まれていなければ500のエラーレスポンスを返す。
// 書き込み済みのレスポンスは壊さないよう、処理を中断するだけにする。
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			user := GetUserID(c)
			if user == "" {
				user = "anonymous"
			}
			log.Printf("[PANIC] %s %s user=%s: %v\n%s", c.Request.Method, c.Request.URL.Path, user, r, debug.Stack())

			if c.Writer.Written() {
				c.Abort()
				return
			}
			AbortWithError(c, http.StatusInternalServerError, "内部サーバーエラーが発生しました")
		}()
		c.Next()
	}
}
