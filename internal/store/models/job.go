package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSONB represents a JSON field that can be stored in a PostgreSQL JSONB column
type JSONB map[string]interface{}

// Value implements driver.Valuer interface for database storage
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner interface for database retrieval
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONB", value)
	}

	return json.Unmarshal(bytes, j)
}

// JobStatus is the lifecycle status of a job, stored uppercase.
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusRunning    JobStatus = "RUNNING"
	JobStatusIncomplete JobStatus = "INCOMPLETE"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusSucceeded  JobStatus = "SUCCEEDED"
	JobStatusCancelled  JobStatus = "CANCELLED"
)

// ConfigType is the kind of work a job performs.
type ConfigType string

const (
	ConfigTypeSync            ConfigType = "SYNC"
	ConfigTypeResetConnection ConfigType = "RESET_CONNECTION"
	ConfigTypeGetSpec         ConfigType = "GET_SPEC"
	ConfigTypeCheckConnection ConfigType = "CHECK_CONNECTION"
	ConfigTypeDiscoverSchema  ConfigType = "DISCOVER_SCHEMA"
)

// Job is one invocation of work for a connection. Its scope is the
// connection ID; its status is a function of its attempts.
type Job struct {
	ID         int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Scope      string     `gorm:"type:uuid;not null;index" json:"scope"`
	ConfigType ConfigType `gorm:"type:text;not null" json:"config_type"`
	Config     JSONB      `gorm:"type:jsonb" json:"config"`
	Status     JobStatus  `gorm:"type:text;not null;default:'PENDING'" json:"status"`
	CreatedAt  time.Time  `gorm:"autoCreateTime:false;default:timezone('utc', now())" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime:false;default:timezone('utc', now())" json:"updated_at"`

	Attempts []Attempt `gorm:"foreignKey:JobID" json:"attempts,omitempty"`
}

// TableName specifies the table name for the model
func (Job) TableName() string {
	return "jobs"
}

// IsTerminal returns true once the job can never transition again.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusFailed || j.Status == JobStatusSucceeded || j.Status == JobStatusCancelled
}

// LastAttempt returns the attempt with the highest attempt number, or nil.
func (j *Job) LastAttempt() *Attempt {
	if len(j.Attempts) == 0 {
		return nil
	}
	last := &j.Attempts[0]
	for i := range j.Attempts {
		if j.Attempts[i].AttemptNumber > last.AttemptNumber {
			last = &j.Attempts[i]
		}
	}
	return last
}

// FailedAttemptCount returns how many attempts of the job have failed.
func (j *Job) FailedAttemptCount() int {
	n := 0
	for i := range j.Attempts {
		if j.Attempts[i].Status == AttemptStatusFailed {
			n++
		}
	}
	return n
}

// TerminalStatuses lists the statuses a job can never leave.
func TerminalStatuses() []JobStatus {
	return []JobStatus{JobStatusFailed, JobStatusSucceeded, JobStatusCancelled}
}
