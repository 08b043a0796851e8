package database

import (
	"time"
)

// CatalogEntry represents one archived meteorological file in a service's
// catalog table. The storm and ensemble columns are only populated for the
// services that scope files that way.
type CatalogEntry struct {
	ID             int64     `gorm:"primaryKey;autoIncrement;column:id"`
	ForecastCycle  time.Time `gorm:"column:forecastcycle;index;not null"`
	ForecastTime   time.Time `gorm:"column:forecasttime;index;not null"`
	Tau            int       `gorm:"column:tau;not null"`
	Filepath       string    `gorm:"column:filepath;not null"`
	URL            string    `gorm:"column:url;not null"`
	Accessed       time.Time `gorm:"column:accessed"`
	StormName      string    `gorm:"column:stormname"`
	EnsembleMember string    `gorm:"column:ensemble_member"`
}

// CatalogTables lists the per-service catalog table names.
func CatalogTables() []string {
	return []string{
		"gfs_ncep",
		"nam_ncep",
		"gefs_ncep",
		"rrfs_ncep",
		"refs_ncep",
		"hrrr_ncep",
		"hrrr_alaska_ncep",
		"hwrf",
		"wpc_ncep",
		"ncep_hafs_a",
		"ncep_hafs_b",
		"coamps_tc",
		"coamps_ctcx",
	}
}

// NhcBtkEntry represents a best-track advisory file from the National
// Hurricane Center.
type NhcBtkEntry struct {
	ID               int64     `gorm:"primaryKey;autoIncrement;column:id"`
	StormYear        int       `gorm:"column:storm_year;index;not null"`
	Basin            string    `gorm:"column:basin;index;not null"`
	Storm            string    `gorm:"column:storm;index;not null"`
	AdvisoryStart    time.Time `gorm:"column:advisory_start;not null"`
	AdvisoryEnd      time.Time `gorm:"column:advisory_end;not null"`
	AdvisoryDuration int       `gorm:"column:advisory_duration;not null"`
	Filepath         string    `gorm:"column:filepath;not null"`
	MD5              string    `gorm:"column:md5;not null"`
	Accessed         time.Time `gorm:"column:accessed"`
	GeometryData     string    `gorm:"column:geometry_data;type:jsonb"`
}

// TableName specifies the table name for NhcBtkEntry
func (NhcBtkEntry) TableName() string {
	return "nhc_btk"
}

// NhcFcstEntry represents a forecast advisory file from the National
// Hurricane Center.
type NhcFcstEntry struct {
	ID               int64     `gorm:"primaryKey;autoIncrement;column:id"`
	StormYear        int       `gorm:"column:storm_year;index;not null"`
	Basin            string    `gorm:"column:basin;index;not null"`
	Storm            string    `gorm:"column:storm;index;not null"`
	Advisory         string    `gorm:"column:advisory;index;not null"`
	AdvisoryStart    time.Time `gorm:"column:advisory_start;not null"`
	AdvisoryEnd      time.Time `gorm:"column:advisory_end;not null"`
	AdvisoryDuration int       `gorm:"column:advisory_duration;not null"`
	Filepath         string    `gorm:"column:filepath;not null"`
	MD5              string    `gorm:"column:md5;not null"`
	Accessed         time.Time `gorm:"column:accessed"`
	GeometryData     string    `gorm:"column:geometry_data;type:jsonb"`
}

// TableName specifies the table name for NhcFcstEntry
func (NhcFcstEntry) TableName() string {
	return "nhc_fcst"
}

// RequestStatus enumerates the lifecycle states of a build request.
type RequestStatus string

const (
	RequestQueued    RequestStatus = "queued"
	RequestRunning   RequestStatus = "running"
	RequestRestore   RequestStatus = "restore"
	RequestError     RequestStatus = "error"
	RequestCompleted RequestStatus = "completed"
)

// Request represents a build request in the queue.
type Request struct {
	ID          int64         `gorm:"primaryKey;autoIncrement;column:id"`
	RequestID   string        `gorm:"column:request_id;uniqueIndex;not null"`
	Try         int           `gorm:"column:try;default:0"`
	Status      RequestStatus `gorm:"column:status;index;not null"`
	StartDate   time.Time     `gorm:"column:start_date"`
	LastDate    time.Time     `gorm:"column:last_date"`
	APIKey      string        `gorm:"column:api_key"`
	SourceIP    string        `gorm:"column:source_ip"`
	InputData   string        `gorm:"column:input_data;type:jsonb"`
	Message     string        `gorm:"column:message;type:jsonb"`
	CreditUsage int64         `gorm:"column:credit_usage;default:0"`
}

// TableName specifies the table name for Request
func (Request) TableName() string {
	return "requests"
}
