package model

// AcquireStatus is the outcome of acquiring one document.
type AcquireStatus string

const (
	AcquireAlreadyPresent AcquireStatus = "already_present"
	AcquireDownloaded     AcquireStatus = "downloaded"
	AcquireFailed         AcquireStatus = "failed"
)

// AcquireResult reports what happened to a single DocumentRef.
type AcquireResult struct {
	Ref    DocumentRef   `json:"ref"`
	Status AcquireStatus `json:"status"`
	Path   string        `json:"path,omitempty"`
	Bytes  int64         `json:"bytes,omitempty"`
	Reason string        `json:"reason,omitempty"`
}

// OK reports whether the document is on disk after the attempt.
func (r AcquireResult) OK() bool {
	return r.Status == AcquireDownloaded || r.Status == AcquireAlreadyPresent
}
