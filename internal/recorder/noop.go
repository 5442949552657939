package recorder

import "github.com/google/uuid"

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordClaim(_ *ClaimRecord) error         { return nil }
func (n *NoopRecorder) RecordRejection(_ *RejectionRecord) error { return nil }
func (n *NoopRecorder) Close() error                             { return nil }

func (n *NoopRecorder) ClaimsByAccount(_ uuid.UUID, _ int) ([]ClaimRecord, error) {
	return nil, nil
}
