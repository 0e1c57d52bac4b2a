package safe

import (
	"IMStore/logger"

	"go.uber.org/zap"
)

// Go 起一个带 recover 的协程；常驻消费循环统一从这里起，
// 单条消息处理 panic 不许带崩整个进程。
func Go(name string, f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("goroutine panic recovered",
					zap.String("name", name), zap.Any("panic", r))
			}
		}()
		f()
	}()
}
