package service

import (
	"errors"
)

const (
	BadRequest          = 400
	Unauthorized        = 401
	NotFound            = 404
	Conflict            = 409
	InternalServerError = 500
	ServiceUnavailable  = 503
)

var (
	ErrParamInvalid         = errors.New("参数错误")
	ErrUserNotFound         = errors.New("用户不存在")
	ErrConversationNotFound = errors.New("会话不存在")
	ErrMessageNotFound      = errors.New("消息不存在")
	ErrNoAdminAvailable     = errors.New("当前租户没有可用的管理员")
	ErrConversationConflict = errors.New("会话创建冲突，请重试")
	ErrNotParticipant       = errors.New("不是该会话的参与者")
	ErrTenantMismatch       = errors.New("发送者与会话不属于同一租户")
	ErrTenantInactive       = errors.New("租户不存在或已停用")
	ErrMessageContent       = errors.New("文本长度需在 1-500 个字符之间")
	ErrImageContent         = errors.New("图片地址需以 .jpg/.jpeg/.png/.gif/.webp 结尾")
	ErrMessageType          = errors.New("不支持的消息类型")
	ErrStatusInvalid        = errors.New("非法的会话状态")
	UnauthorizedError       = errors.New("权限不足")
	UnExpectedError         = errors.New("系统异常，请稍后重试")
)

var ErrorMap = map[error]int{
	ErrParamInvalid:         BadRequest,
	ErrUserNotFound:         NotFound,
	ErrConversationNotFound: NotFound,
	ErrMessageNotFound:      NotFound,
	ErrNoAdminAvailable:     ServiceUnavailable,
	ErrConversationConflict: Conflict,
	ErrNotParticipant:       Unauthorized,
	ErrTenantMismatch:       Unauthorized,
	ErrTenantInactive:       BadRequest,
	ErrMessageContent:       BadRequest,
	ErrImageContent:         BadRequest,
	ErrMessageType:          BadRequest,
	ErrStatusInvalid:        BadRequest,
	UnauthorizedError:       Unauthorized,
	UnExpectedError:         InternalServerError,
}
