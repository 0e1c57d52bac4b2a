package errs

// 业务码分段：11xx 存储/发号，12xx 复制链路
const (
	ArgsError           = 1001
	ServerInternalError = 1002

	ConversationNotFoundError = 1101 // 发号前 ledger 记录缺失
	DuplicateSequenceError    = 1102 // 分区内 (conversation_id, seq) 冲突
	WriteConflictError        = 1103 // 乐观并发冲突，交给队列重投
	CheckpointInvalidError    = 1201 // resume token 损坏，丢弃后全新开流
	HandlerFlushError         = 1202 // 单 handler flush 失败，不阻塞 checkpoint
)

var (
	ErrArgs                 = NewCodeError(ArgsError, "ArgsError")
	ErrInternal             = NewCodeError(ServerInternalError, "ServerInternalError")
	ErrConversationNotFound = NewCodeError(ConversationNotFoundError, "ConversationNotFound")
	ErrDuplicateSequence    = NewCodeError(DuplicateSequenceError, "DuplicateSequence")
	ErrWriteConflict        = NewCodeError(WriteConflictError, "WriteConflict")
	ErrCheckpointInvalid    = NewCodeError(CheckpointInvalidError, "CheckpointInvalid")
	ErrHandlerFlush         = NewCodeError(HandlerFlushError, "HandlerFlushFailure")
)
