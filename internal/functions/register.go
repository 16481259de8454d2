package functions

import (
	"github.com/oriys/nimbus-functions/internal/config"
	"github.com/oriys/nimbus-functions/internal/host"
)

// Deps 是处理函数的外部依赖。
type Deps struct {
	Functions config.FunctionsConfig
	Stores    StoreProvider
	Recorder  DocumentRecorder
	Demo      []LoggingDemoOption
}

// Register 将全部处理函数注册到宿主。
func Register(reg *host.Registry, deps Deps) error {
	demo := NewLoggingDemo(deps.Functions, deps.Demo...)
	insert := NewDocumentInsert(deps.Stores, deps.Recorder)

	for _, fn := range []host.Function{
		{Name: EchoFunctionName, HTTP: Echo},
		{Name: LoggingDemoFunctionName, HTTP: demo.Handle},
		{Name: SimpleLogFunctionName, HTTP: SimpleLog, Message: SimpleLogTick},
		{Name: QueueFunctionName, Message: QueueMessage},
		{Name: EventStreamFunctionName, Message: EventStreamRecord},
		{Name: InsertFunctionName, HTTP: insert.Handle},
	} {
		if err := reg.Register(fn); err != nil {
			return err
		}
	}
	return nil
}
