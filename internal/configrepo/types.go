package configrepo

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ConfigKind partitions the config store file tree. Each kind maps to a
// directory under the config root holding one <uuid>.json file per object.
type ConfigKind string

const (
	KindSourceConnection      ConfigKind = "SOURCE_CONNECTION"
	KindDestinationConnection ConfigKind = "DESTINATION_CONNECTION"
	KindStandardSync          ConfigKind = "STANDARD_SYNC"
	KindSourceDefinition      ConfigKind = "STANDARD_SOURCE_DEFINITION"
	KindDestinationDefinition ConfigKind = "STANDARD_DESTINATION_DEFINITION"
)

// SyncStatus is ACTIVE or INACTIVE
type SyncStatus string

const (
	SyncStatusActive   SyncStatus = "ACTIVE"
	SyncStatusInactive SyncStatus = "INACTIVE"
)

// TimeUnit is the unit of a periodic schedule
type TimeUnit string

const (
	TimeUnitMinutes TimeUnit = "minutes"
	TimeUnitHours   TimeUnit = "hours"
	TimeUnitDays    TimeUnit = "days"
	TimeUnitWeeks   TimeUnit = "weeks"
	TimeUnitMonths  TimeUnit = "months"
)

// Schedule describes a periodic cadence, e.g. {units: 1, timeUnit: "hours"}
type Schedule struct {
	Units    int64    `json:"units"`
	TimeUnit TimeUnit `json:"timeUnit"`
}

// Interval converts the schedule to a duration. Months are approximated as
// 30 days, matching the cadence check's coarse granularity.
func (s Schedule) Interval() (time.Duration, error) {
	var unit time.Duration
	switch s.TimeUnit {
	case TimeUnitMinutes:
		unit = time.Minute
	case TimeUnitHours:
		unit = time.Hour
	case TimeUnitDays:
		unit = 24 * time.Hour
	case TimeUnitWeeks:
		unit = 7 * 24 * time.Hour
	case TimeUnitMonths:
		unit = 30 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("unknown time unit: %s", s.TimeUnit)
	}
	return time.Duration(s.Units) * unit, nil
}

// StandardSync is a connection: replicate from a source to a destination on
// a schedule. The catalog of streams to replicate is embedded.
type StandardSync struct {
	ConnectionID  uuid.UUID       `json:"connectionId"`
	SourceID      uuid.UUID       `json:"sourceId"`
	DestinationID uuid.UUID       `json:"destinationId"`
	Name          string          `json:"name"`
	Status        SyncStatus      `json:"status"`
	Manual        bool            `json:"manual"`
	Schedule      *Schedule       `json:"schedule,omitempty"`
	Catalog       json.RawMessage `json:"catalog,omitempty"`
}

// SourceConnection is a configured source instance
type SourceConnection struct {
	SourceID           uuid.UUID       `json:"sourceId"`
	SourceDefinitionID uuid.UUID       `json:"sourceDefinitionId"`
	WorkspaceID        uuid.UUID       `json:"workspaceId"`
	Name               string          `json:"name"`
	Configuration      json.RawMessage `json:"configuration"`
}

// DestinationConnection is a configured destination instance
type DestinationConnection struct {
	DestinationID           uuid.UUID       `json:"destinationId"`
	DestinationDefinitionID uuid.UUID       `json:"destinationDefinitionId"`
	WorkspaceID             uuid.UUID       `json:"workspaceId"`
	Name                    string          `json:"name"`
	Configuration           json.RawMessage `json:"configuration"`
}

// SourceDefinition names the connector image implementing a source
type SourceDefinition struct {
	SourceDefinitionID uuid.UUID `json:"sourceDefinitionId"`
	Name               string    `json:"name"`
	DockerRepository   string    `json:"dockerRepository"`
	DockerImageTag     string    `json:"dockerImageTag"`
}

// ImageName returns the full connector image reference
func (d SourceDefinition) ImageName() string {
	return d.DockerRepository + ":" + d.DockerImageTag
}

// DestinationDefinition names the connector image implementing a destination
type DestinationDefinition struct {
	DestinationDefinitionID uuid.UUID `json:"destinationDefinitionId"`
	Name                    string    `json:"name"`
	DockerRepository        string    `json:"dockerRepository"`
	DockerImageTag          string    `json:"dockerImageTag"`
}

// ImageName returns the full connector image reference
func (d DestinationDefinition) ImageName() string {
	return d.DockerRepository + ":" + d.DockerImageTag
}
