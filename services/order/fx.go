package order

import (
	"giftvoucher/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("order.service",
	fx.Provide(NewCodeStorage, NewService),
	fx.Invoke(RegisterRoutes),
)

var TaskModule = fx.Module("order.task",
	fx.Provide(NewTask, NewScheduler),
	fx.Invoke(registerHandlers, StartScheduler),
)

func registerHandlers(mux *asynq.ServeMux, t *Task) {
	mux.HandleFunc(taskname.OrderCompleted, t.HandleOrderCompletedTask)
	mux.HandleFunc(taskname.CodeSweepExpired, t.HandleSweepExpiredTask)
}
