package jobs

import "time"

// Provider selects the model backend that writes the animation script.
type Provider string

const (
	ProviderGemini      Provider = "gemini"
	ProviderAzureOpenAI Provider = "azure_openai"
)

// Status is the lifecycle state of a generation job. Jobs are created
// pending and settle as completed or failed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is one prompt-to-animation request and its lifecycle status.
// The backend owns it; the client only ever holds snapshots, so a
// job's displayed status is as fresh as the last fetch.
type Job struct {
	ID           string    `json:"id"`
	Prompt       string    `json:"prompt"`
	Script       string    `json:"script"`
	Provider     Provider  `json:"provider"`
	ScriptPath   string    `json:"script_path,omitempty"`
	OutputPath   string    `json:"output_path,omitempty"`
	OutputURL    string    `json:"output_url,omitempty"`
	Status       Status    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// generateRequest is the payload for the generation endpoint. Execute
// asks the backend to also render the script it produced.
type generateRequest struct {
	Prompt   string   `json:"prompt"`
	Provider Provider `json:"provider"`
	Execute  bool     `json:"execute,omitempty"`
}
