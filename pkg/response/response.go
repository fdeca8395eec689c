package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess     = 0
	CodeParamError  = 400
	CodeNotFound    = 404
	CodeServerError = 500
)

// 业务错误码
const (
	CodePreconditionFailed  = 2001 // 有成员未缴纳本期会费
	CodeDuplicatePeriod     = 2002 // 本期已分配
	CodeDuplicatePayment    = 2003 // 本期已缴款
	CodeFeeTooLow           = 2004
	CodeRepaymentInvalid    = 2005
	CodeMemberNotFound      = 2006
	CodeDuplicateMember     = 2007
	CodeAllocationNotFound  = 2008
	CodeAssignmentLockBusy  = 2009
	CodeInvalidAmountFormat = 2010
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// Error 业务错误仍返回 HTTP 200，由 code 区分
func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

// ErrorWithData 需要附带明细时使用，例如未缴费成员列表
func ErrorWithData(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

func BusinessError(c *gin.Context, code int, message string) {
	Error(c, code, message)
}
