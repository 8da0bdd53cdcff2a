package ecode

// 错误码，0表示成功
const (
	Success = 0
	Unknown = 10000

	// 参数校验失败，未产生任何副作用
	ValidateErr    = 10001
	RequireAuthErr = 10002
	NotFoundErr    = 10004
	ConflictErr    = 10009

	// 风控或熔断拒绝，订单未发送
	AdmissionRejected = 20001
	// 券商接口调用失败或被拒
	BrokerErr = 20002
	// 多笔子单部分成功
	PartialExecution = 20003
	// 缺少凭证或配置
	ConfigErr = 20004
)

var messages = map[int]string{
	Success:           "ok",
	Unknown:           "unknown error",
	ValidateErr:       "validation error",
	RequireAuthErr:    "authentication required",
	NotFoundErr:       "not found",
	ConflictErr:       "conflict",
	AdmissionRejected: "admission rejected",
	BrokerErr:         "broker error",
	PartialExecution:  "partial execution",
	ConfigErr:         "configuration error",
}

// Text 错误码对应的默认提示
func Text(code int) string {
	if msg, ok := messages[code]; ok {
		return msg
	}
	return messages[Unknown]
}
