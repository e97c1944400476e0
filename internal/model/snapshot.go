package model

import (
	"time"
)

// Snapshot compression codecs.
const (
	CompressionLZ4  = "LZ4"
	CompressionGZIP = "GZIP"
)

// Snapshot is an immutable, compressed, content-addressed archive of an
// instance's working state. Rows are never updated after creation; deletion
// happens explicitly or through the retention job.
type Snapshot struct {
	Id               int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	SnapshotID       string    `json:"snapshot_id" gorm:"column:snapshot_id;uniqueIndex"`
	SourceInstanceID string    `json:"source_instance_id" gorm:"column:source_instance_id;index"`
	SizeBytes        int64     `json:"size_bytes" gorm:"column:size_bytes"`
	Compression      string    `json:"compression" gorm:"column:compression"`
	StorageURI       string    `json:"storage_uri" gorm:"column:storage_uri"`
	Checksum         string    `json:"checksum" gorm:"column:checksum"`
	FileCount        int64     `json:"file_count" gorm:"column:file_count"`
	CreateTime       time.Time `json:"create_time" gorm:"column:gmt_create"`
}

func (Snapshot) TableName() string {
	return "snapshot"
}
