package model

// Content types
type ContentType string

const (
	ContentTypeBlog    ContentType = "blog"
	ContentTypeProduct ContentType = "product"
	ContentTypeSocial  ContentType = "social"
)

var ValidContentTypes = []ContentType{
	ContentTypeBlog, ContentTypeProduct, ContentTypeSocial,
}

// IsValid reports whether t is one of the supported content types.
func (t ContentType) IsValid() bool {
	for _, v := range ValidContentTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Publication status of a content record
type ContentStatus string

const (
	ContentStatusDraft     ContentStatus = "draft"
	ContentStatusPublished ContentStatus = "published"
)

// GenerationStatus is the four-valued AI generation state of a content record.
// It is distinct from the broker's own job state.
type GenerationStatus string

const (
	GenerationStatusPending    GenerationStatus = "pending"
	GenerationStatusProcessing GenerationStatus = "processing"
	GenerationStatusCompleted  GenerationStatus = "completed"
	GenerationStatusFailed     GenerationStatus = "failed"
)

// IsTerminal reports whether the status is completed or failed.
func (s GenerationStatus) IsTerminal() bool {
	return s == GenerationStatusCompleted || s == GenerationStatusFailed
}

// BrokerState is the queue-side vocabulary for where a job sits. The asynq
// task states are translated into these before anything else looks at them.
type BrokerState string

const (
	BrokerStateWaiting   BrokerState = "waiting"
	BrokerStateDelayed   BrokerState = "delayed"
	BrokerStatePaused    BrokerState = "paused"
	BrokerStateActive    BrokerState = "active"
	BrokerStateCompleted BrokerState = "completed"
	BrokerStateFailed    BrokerState = "failed"
	BrokerStateStuck     BrokerState = "stuck"
)
