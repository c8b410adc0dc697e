package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// TaskFollowUpDue processes one follow-up job at its run time.
const TaskFollowUpDue = "followups.due"

// TaskFollowUpSweep processes every due follow-up job.
const TaskFollowUpSweep = "followups.sweep"

type FollowUpDuePayload struct {
	JobID string `json:"jobId"`
}

func NewFollowUpDueTask(payload FollowUpDuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFollowUpDue, data), nil
}

func ParseFollowUpDuePayload(task *asynq.Task) (FollowUpDuePayload, error) {
	var payload FollowUpDuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return FollowUpDuePayload{}, err
	}
	return payload, nil
}

func NewFollowUpSweepTask() *asynq.Task {
	return asynq.NewTask(TaskFollowUpSweep, nil)
}
