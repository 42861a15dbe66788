package models

import "errors"

// KnowledgeBaseBinding attaches a knowledge base to an Agent with a
// retrieval priority and scoring weight.
type KnowledgeBaseBinding struct {
	KbID     string
	Priority int
	Weight   float64
}

// Agent is the configuration bundle for an LLM call: system prompt,
// model, decoding params, and bound knowledge bases.
type Agent struct {
	ID               string
	PromptSystem     string
	Model            string
	Temperature      float64
	MaxTokens        int
	KnowledgeBases   []KnowledgeBaseBinding
}

// Validate enforces the agent's decoding-parameter bounds.
func (a *Agent) Validate() error {
	if a.Model == "" {
		return errors.New("agent model is required")
	}
	if a.Temperature < 0 || a.Temperature > 2 {
		return errors.New("agent temperature must be within [0,2]")
	}
	if a.MaxTokens < 1 || a.MaxTokens > 4000 {
		return errors.New("agent maxTokens must be within [1,4000]")
	}
	return nil
}

// KbIDs returns the bound knowledge base ids, preserving declared order.
func (a *Agent) KbIDs() []string {
	ids := make([]string, len(a.KnowledgeBases))
	for i, kb := range a.KnowledgeBases {
		ids[i] = kb.KbID
	}
	return ids
}
