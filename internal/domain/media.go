package domain

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Status is the lifecycle state of a media upload.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// CanTransition reports whether a status change from -> to is allowed.
// Transitions only move forward; failed is reachable from any non-terminal
// state. completed and failed are terminal (a manual re-dispatch creates a
// new flow, it never resurrects an old record).
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusCompleted || to == StatusFailed
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	case StatusCompleted, StatusFailed:
		return false
	default:
		return false
	}
}

// ValidateTransition returns an error for a disallowed status change.
// A same-status "transition" is a no-op, not an error — workers may re-mark
// processing when a job is redelivered.
func ValidateTransition(from, to Status) error {
	if from == to {
		return nil
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// OwnerKind tags the type of entity a media upload is attached to.
// The media service only stores and returns the reference; it never
// dereferences it — the owning side is resolved by the caller.
type OwnerKind string

const (
	OwnerExercise      OwnerKind = "exercise"
	OwnerTreatmentPlan OwnerKind = "treatment_plan"
	OwnerClinic        OwnerKind = "clinic"
)

// OwnerRef is a non-owning back-reference to the entity an upload belongs to.
type OwnerRef struct {
	Kind OwnerKind `bson:"kind" json:"kind"`
	ID   string    `bson:"id" json:"id"`
}

// MediaUpload stores metadata about one uploaded media asset. The bytes
// themselves live in object storage; this record is the durable trace of the
// upload's lifecycle.
type MediaUpload struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Filename         string             `bson:"filename" json:"filename"`                  // storage-facing name, assigned when the final path is known
	OriginalFilename string             `bson:"originalFilename" json:"originalFilename"`  // client-supplied name, immutable
	Path             string             `bson:"path" json:"path"`                          // storage key; empty until the upload completes
	URL              string             `bson:"url,omitempty" json:"url,omitempty"`        // storage-origin URL
	CDNURL           string             `bson:"cdnUrl,omitempty" json:"cdnUrl,omitempty"`
	MimeType         string             `bson:"mimeType" json:"mimeType"`
	Size             int64              `bson:"size" json:"size"` // bytes, never negative
	Status           Status             `bson:"status" json:"status"`
	Metadata         map[string]any     `bson:"metadata,omitempty" json:"metadata,omitempty"`
	Owner            *OwnerRef          `bson:"owner,omitempty" json:"owner,omitempty"`
	ThumbnailPath    string             `bson:"thumbnailPath,omitempty" json:"thumbnailPath,omitempty"`
	ThumbnailURL     string             `bson:"thumbnailUrl,omitempty" json:"thumbnailUrl,omitempty"`
	Deleted          bool               `bson:"deleted" json:"-"`
	DeletedAt        *time.Time         `bson:"deletedAt,omitempty" json:"-"`
	CreatedAt        time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// MergeMetadata shallow-merges incoming on top of existing: keys present in
// incoming win, keys only in existing survive. One level deep — nested maps
// are replaced wholesale, not merged. Neither input is mutated.
func MergeMetadata(existing, incoming map[string]any) map[string]any {
	if len(existing) == 0 && len(incoming) == 0 {
		return nil
	}
	merged := make(map[string]any, len(existing)+len(incoming))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range incoming {
		merged[k] = v
	}
	return merged
}
