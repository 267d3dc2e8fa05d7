package models

import "time"

// AttemptStatus is the lifecycle status of an attempt, stored uppercase.
type AttemptStatus string

const (
	AttemptStatusRunning   AttemptStatus = "RUNNING"
	AttemptStatusFailed    AttemptStatus = "FAILED"
	AttemptStatusSucceeded AttemptStatus = "SUCCEEDED"
)

// Attempt is one execution try of a job. Attempt numbers are dense from 0
// within a job, enforced by the (job_id, attempt_number) primary key.
type Attempt struct {
	JobID         int64         `gorm:"primaryKey" json:"job_id"`
	AttemptNumber int           `gorm:"primaryKey" json:"attempt_number"`
	Status        AttemptStatus `gorm:"type:text;not null;default:'RUNNING'" json:"status"`

	// LogPath is the attempt workspace directory: <workspaceRoot>/<jobId>/<attemptNumber>
	LogPath string `gorm:"type:text;not null" json:"log_path"`

	// Output holds the sync summary, discovered catalog, spec, or check result
	Output JSONB `gorm:"type:jsonb" json:"output"`

	CreatedAt time.Time  `gorm:"autoCreateTime:false;default:timezone('utc', now())" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime:false;default:timezone('utc', now())" json:"updated_at"`
	EndedAt   *time.Time `json:"ended_at"`
}

// TableName specifies the table name for the model
func (Attempt) TableName() string {
	return "attempts"
}

// Metadata is a key/value row in driftsync_metadata. The "version" key holds
// the platform version written by the config server after migrations.
type Metadata struct {
	Key   string `gorm:"primaryKey;type:text" json:"key"`
	Value string `gorm:"type:text;not null" json:"value"`
}

// TableName specifies the table name for the model
func (Metadata) TableName() string {
	return "driftsync_metadata"
}

// MetadataVersionKey is the metadata key carrying the platform version.
const MetadataVersionKey = "version"
