package response

import (
	"edgetrade/internal/consts"
	"edgetrade/pkg/errors"
	"edgetrade/pkg/errors/ecode"
	"net/http"

	"github.com/gin-gonic/gin"
)

// 代表响应给客户端的的一个消息结构，包括错误码，错误信息，响应数据
type ApiResponse struct {
	RequestId string      `json:"request_id"` // 请求的唯一ID
	Code      int         `json:"code"`       // 错误码 0表示无错误
	Message   string      `json:"message"`    // 提示信息
	Data      interface{} `json:"data"`       // 响应数据
}

// 发送json格式数据
func JSON(c *gin.Context, err error, data interface{}) {
	code, message := errors.DecodeErr(err)
	c.JSON(httpStatus(code), ApiResponse{
		RequestId: c.GetString(consts.RequestId),
		Code:      code,
		Message:   message,
		Data:      data,
	})
}

// 风控拒绝、部分成交等业务结果也带上数据返回，前端需要看到拒绝原因
func httpStatus(code int) int {
	switch code {
	case ecode.Success:
		return http.StatusOK
	case ecode.ValidateErr:
		return http.StatusBadRequest
	case ecode.RequireAuthErr:
		return http.StatusUnauthorized
	case ecode.NotFoundErr:
		return http.StatusNotFound
	case ecode.ConflictErr:
		return http.StatusConflict
	case ecode.AdmissionRejected:
		return http.StatusUnprocessableEntity
	case ecode.PartialExecution:
		return http.StatusMultiStatus
	case ecode.BrokerErr:
		return http.StatusBadGateway
	case ecode.ConfigErr:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// 缺少账户标识，返回401
func RequireAuthErr(c *gin.Context, err error) {
	var message string
	if err != nil {
		message = err.Error()
	} else {
		message = "unknow error."
	}
	c.JSON(http.StatusUnauthorized, ApiResponse{
		RequestId: c.GetString(consts.RequestId),
		Code:      ecode.RequireAuthErr,
		Message:   "invalid account:" + message,
		Data:      nil,
	})
}

// 请求频繁，返回429
func TooManyRequests(c *gin.Context) {
	c.JSON(http.StatusTooManyRequests, ApiResponse{
		RequestId: c.GetString(consts.RequestId),
		Code:      ecode.ConflictErr,
		Message:   "The request is too frequent. Please try again later.",
		Data:      nil,
	})
}
