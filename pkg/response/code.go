package response

// 业务状态码
const (
	CodeSuccess = 0
	CodeError   = 1

	// 用户/认证错误 100xx
	ErrUserNotFound   = 10002
	ErrAuthFailed     = 10003
	ErrTokenInvalid   = 10004
	ErrNoPermission   = 10005
	ErrUserSanctioned = 10006

	// 内容模块错误 200xx
	ErrContentNotFound   = 20001
	ErrContentNotVisible = 20002
	ErrInvalidTransition = 20003
	ErrContentTooLong    = 20004
	ErrTopicPrivilege    = 20005
	ErrVersionNotFound   = 20006

	// 队列模块错误 300xx
	ErrAlreadyQueued  = 30001
	ErrQueueEntryGone = 30002
	ErrNotClaimOwner  = 30003

	// 申诉模块错误 400xx
	ErrAppealNotFound     = 40001
	ErrAppealDuplicate    = 40002
	ErrAppealNotEligible  = 40003
	ErrAppealCooldown     = 40004
	ErrAppealLimitReached = 40005
	ErrAppealReasonLength = 40006
	ErrAppealNotAssigned  = 40007
	ErrAppealTerminal     = 40008

	// 举报模块错误 600xx
	ErrFlagNotFound       = 60001
	ErrFlagDuplicate      = 60002
	ErrFlagNotEligible    = 60003
	ErrFlagAlreadyDecided = 60004

	// 系统错误 500xx
	ErrServerInternal  = 50001
	ErrInvalidParam    = 50002
	ErrTooManyRequests = 50003
)
