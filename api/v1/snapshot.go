package v1

import "time"

type CreateSnapshotRequest struct {
	InstanceID string `json:"instance_id" binding:"required"`
}

type SnapshotDetail struct {
	SnapshotID       string    `json:"snapshot_id"`
	SourceInstanceID string    `json:"source_instance_id"`
	SizeBytes        int64     `json:"size_bytes"`
	FileCount        int64     `json:"file_count"`
	Compression      string    `json:"compression"`
	Checksum         string    `json:"checksum"`
	StorageURI       string    `json:"storage_uri"`
	CreateTime       time.Time `json:"create_time"`
}

type CreateSnapshotResponse struct {
	Response
	Data SnapshotDetail
}

type ListSnapshotRequest struct {
	InstanceID string `form:"instance_id" binding:"required"`
}

type ListSnapshotResponse struct {
	Response
	Data []*SnapshotDetail
}

type RestoreSnapshotRequest struct {
	TargetInstanceID string `json:"target_instance_id" binding:"required"`
}

type RestoreSnapshotResponseData struct {
	RestoredBytes int64 `json:"restored_bytes"`
	RestoredFiles int64 `json:"restored_files"`
}

type RestoreSnapshotResponse struct {
	Response
	Data RestoreSnapshotResponseData
}
