package models

import (
	"time"
)

// AppLog is the persisted form of a zap log entry (app_logs collection)
type AppLog struct {
	Message      string    `bson:"message" json:"message"`
	LogLevelId   int       `bson:"log_level_id" json:"log_level_id"`
	Caller       string    `bson:"caller,omitempty" json:"caller,omitempty"`
	SyncType     string    `bson:"sync_type,omitempty" json:"sync_type,omitempty"`
	AppId        string    `bson:"app_id" json:"app_id"`
	CreatedOnUtc time.Time `bson:"created_on_utc" json:"created_on_utc"`
}
