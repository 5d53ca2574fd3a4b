package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/webapi/proxyutil"
)

// codeErr pairs an errcode value with a user-facing message so
// proxyutil can render the standard {code, message} envelope.
type codeErr struct {
	code uint32
	msg  string
}

func (e codeErr) Error() string { return e.msg }

func (e codeErr) Code() uint32 { return e.code }

func AsCodeErr(code uint32, msg string) error {
	return codeErr{code: code, msg: msg}
}

func Success(c *gin.Context, data interface{}) {
	proxyutil.SuccessJson(c, data)
}

// Error always answers HTTP 200; the business outcome travels in the
// envelope code, which is what API clients switch on.
func Error(c *gin.Context, code int, message string) {
	proxyutil.FailJson(c, http.StatusOK, AsCodeErr(uint32(code), message))
}
