package domain

import "time"

// TaskFailure reports a background task that returned an error.
type TaskFailure struct {
	TaskID   string        `json:"task_id"`
	Name     string        `json:"name"`
	StoreID  string        `json:"store_id,omitempty"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
	FailedAt time.Time     `json:"failed_at"`
}

func (f TaskFailure) Error() string {
	if f.Err == nil {
		return f.Name + " failed"
	}
	return f.Name + " failed: " + f.Err.Error()
}
