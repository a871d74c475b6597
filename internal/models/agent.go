package models

import (
	"github.com/jinzhu/gorm"
)

// Agent represents a configured binding to an external or native
// LLM-serving endpoint. Agents are created by the admin surface and
// consumed read-only by the execution engine.
type Agent struct {
	gorm.Model
	WorkspaceID uint     `gorm:"index;not null" json:"workspace_id"`
	Name        string   `gorm:"not null" json:"name"`
	Platform    Platform `gorm:"not null" json:"platform"`

	// Connection descriptor. APIKeyReference names a secret in the
	// process-wide secret store; the credential value itself is never
	// persisted.
	Endpoint        string  `json:"endpoint"`
	APIKeyReference string  `json:"api_key_reference"`
	ModelName       string  `json:"model_name"`
	Deployment      string  `json:"deployment"`
	SystemPrompt    string  `gorm:"type:text" json:"system_prompt"`
	Temperature     float64 `json:"temperature"`
	MaxTokens       int     `json:"max_tokens"`
}
