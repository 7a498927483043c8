package rag

import (
	"learning-assistant/internal/config"
	"learning-assistant/internal/models"
)

// SystemPrompt picks the persona for the user's age. Thresholds are
// inclusive upper bounds.
func SystemPrompt(age *int, persona config.PersonaConfig) string {
	switch {
	case !persona.Enabled || age == nil:
		return models.DefaultSystemPrompt
	case *age <= persona.ChildMax:
		return models.ChildSystemPrompt
	case *age <= persona.TeenMax:
		return models.TeenSystemPrompt
	default:
		return models.AdultSystemPrompt
	}
}
