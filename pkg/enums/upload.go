package enums

import "fmt"

// UploadStatus is the terminal-state machine for a bulk upload attempt.
type UploadStatus string

const (
	UploadProcessing UploadStatus = "processing"
	UploadCompleted  UploadStatus = "completed"
	UploadFailed     UploadStatus = "failed"
)

var validUploadStatuses = []UploadStatus{
	UploadProcessing,
	UploadCompleted,
	UploadFailed,
}

// IsValid reports whether the value matches the upload_status enum.
func (s UploadStatus) IsValid() bool {
	for _, candidate := range validUploadStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseUploadStatus converts raw input into UploadStatus.
func ParseUploadStatus(value string) (UploadStatus, error) {
	for _, candidate := range validUploadStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid upload status %q", value)
}
