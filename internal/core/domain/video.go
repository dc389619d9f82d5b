package domain

import "time"

type ProcessingStatus string

const (
	ProcessingPending    ProcessingStatus = "pending"
	ProcessingInProgress ProcessingStatus = "processing"
	ProcessingCompleted  ProcessingStatus = "completed"
	ProcessingFailed     ProcessingStatus = "failed"
)

// Terminal reports whether a status permits no further transitions.
func (s ProcessingStatus) Terminal() bool {
	return s == ProcessingCompleted || s == ProcessingFailed
}

type SensitivityStatus string

const (
	SensitivityPending SensitivityStatus = "pending"
	SensitivitySafe    SensitivityStatus = "safe"
	SensitivityFlagged SensitivityStatus = "flagged"
)

// VerdictSource records whether a sensitivity verdict came from the
// classification backend or from the simulated fallback policy.
type VerdictSource string

const (
	SourceModel     VerdictSource = "model"
	SourceSimulated VerdictSource = "simulated"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// Principal is the already-authenticated caller identity attached to a request.
// Token issuing and validation happen outside this service.
type Principal struct {
	UserID   string
	TenantID string
	Role     Role
}

// SensitivityDetails is populated iff the video is flagged.
type SensitivityDetails struct {
	Reason    string `json:"reason"`
	Timestamp string `json:"timestamp"`
}

type Video struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	UploadedBy string `json:"uploaded_by"`
	TenantID   string `json:"tenant_id"`

	// StorageRef is either a local storage key or a remote URL.
	StorageRef string `json:"storage_ref"`
	MimeType   string `json:"mime_type"`
	SizeBytes  int64  `json:"size_bytes"`

	ProcessingStatus   ProcessingStatus    `json:"processing_status"`
	SensitivityStatus  SensitivityStatus   `json:"sensitivity_status"`
	SensitivityDetails *SensitivityDetails `json:"sensitivity_details,omitempty"`
	VerdictSource      VerdictSource       `json:"verdict_source,omitempty"`
	ErrorMessage       string              `json:"error_message,omitempty"`

	Views     int64     `json:"views"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Verdict is the normalized safety evaluation returned by the classifier.
type Verdict struct {
	IsSafe    bool   `json:"isSafe"`
	Reason    string `json:"reason"`
	Timestamp string `json:"timestamp"`
}

// Outcome tags a verdict with its provenance so a genuine classification and a
// simulated one stay distinguishable after persistence.
type Outcome struct {
	Verdict Verdict
	Source  VerdictSource
}

// VideoFilter narrows catalog listings.
type VideoFilter struct {
	ProcessingStatus  ProcessingStatus
	SensitivityStatus SensitivityStatus
	UploadedBy        string
	TenantID          string
	ExcludeFlagged    bool
	CompletedOnly     bool
}
