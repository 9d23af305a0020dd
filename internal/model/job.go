package model

// Task types
const (
	TaskTypeContentGeneration = "content:generate"
)

// GenerationJobPayload is the broker-agnostic payload of a generation job
type GenerationJobPayload struct {
	UserID      string      `json:"userId"`
	ContentID   string      `json:"contentId"`
	ContentType ContentType `json:"contentType"`
	Prompt      string      `json:"prompt"`
	Title       string      `json:"title"`
}

// JobStatusResponse is the answer to a job status query
type JobStatusResponse struct {
	JobID         string            `json:"jobId"`
	Status        GenerationStatus  `json:"status"`
	FailureReason string            `json:"failureReason,omitempty"`
	Content       *JobContentDetail `json:"content,omitempty"`
}

// JobContentDetail is included once a job has completed
type JobContentDetail struct {
	ID            string      `json:"id"`
	Title         string      `json:"title"`
	GeneratedText string      `json:"generatedText"`
	ContentType   ContentType `json:"contentType"`
	Prompt        string      `json:"prompt"`
}
