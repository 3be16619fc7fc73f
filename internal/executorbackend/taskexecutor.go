package executorbackend

import "github.com/skewsched/coredriver/internal/coretypes"

// TaskExecutor runs launched tasks. The closure/data serializer and
// task-set manager internals stay external collaborators; implementations
// receive the full TaskDescription so they can register the task's
// shuffle-fetch inventory with the driver's skew controller.
type TaskExecutor interface {
	LaunchTask(desc coretypes.TaskDescription) error
	KillTask(taskID coretypes.TaskID, interrupt bool) error
	Stop()
}
