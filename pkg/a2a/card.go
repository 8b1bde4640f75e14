package a2a

import (
	"fmt"

	"github.com/spf13/viper"
)

/*
AgentCard conveys the top‑level capabilities and metadata exposed by a remote
agent that supports the A2A protocol.  It is served from the well‑known
discovery path so that clients can catalogue the agent before sending tasks.
*/
type AgentCard struct {
	Name               string               `json:"name"`
	Description        *string              `json:"description,omitempty"`
	URL                string               `json:"url"`
	Provider           *AgentProvider       `json:"provider,omitempty"`
	Version            string               `json:"version"`
	DocumentationURL   *string              `json:"documentationUrl,omitempty"`
	Capabilities       AgentCapabilities    `json:"capabilities"`
	Authentication     *AgentAuthentication `json:"authentication,omitempty"`
	DefaultInputModes  []string             `json:"defaultInputModes,omitempty"`
	DefaultOutputModes []string             `json:"defaultOutputModes,omitempty"`
	Skills             []AgentSkill         `json:"skills"`
}

// NewAgentCardFromConfig builds the card from the viper config tree under
// agent.<key>, with the URL filled in by the caller once host/port are known.
func NewAgentCardFromConfig(key string, url string) *AgentCard {
	v := viper.GetViper()

	return &AgentCard{
		Name:        v.GetString(fmt.Sprintf("agent.%s.name", key)),
		Description: ptr(v.GetString(fmt.Sprintf("agent.%s.description", key))),
		URL:         url,
		Version:     v.GetString(fmt.Sprintf("agent.%s.version", key)),
		Capabilities: AgentCapabilities{
			Streaming:              v.GetBool(fmt.Sprintf("agent.%s.capabilities.streaming", key)),
			PushNotifications:      v.GetBool(fmt.Sprintf("agent.%s.capabilities.push_notifications", key)),
			StateTransitionHistory: v.GetBool(fmt.Sprintf("agent.%s.capabilities.state_transition_history", key)),
		},
		DefaultInputModes:  v.GetStringSlice(fmt.Sprintf("agent.%s.input_modes", key)),
		DefaultOutputModes: v.GetStringSlice(fmt.Sprintf("agent.%s.output_modes", key)),
		Skills:             []AgentSkill{NewSkillFromConfig(key)},
	}
}

type AgentProvider struct {
	Organization string  `json:"organization"`
	URL          *string `json:"url,omitempty"`
}

type AgentCapabilities struct {
	Streaming              bool `json:"streaming,omitempty"`
	PushNotifications      bool `json:"pushNotifications,omitempty"`
	StateTransitionHistory bool `json:"stateTransitionHistory,omitempty"`
}

type AgentAuthentication struct {
	Schemes     []string `json:"schemes"`
	Credentials *string  `json:"credentials,omitempty"`
}

type AgentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description *string  `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Examples    []string `json:"examples,omitempty"`
	InputModes  []string `json:"inputModes,omitempty"`
	OutputModes []string `json:"outputModes,omitempty"`
}

func NewSkillFromConfig(key string) AgentSkill {
	v := viper.GetViper()

	return AgentSkill{
		ID:          v.GetString(fmt.Sprintf("skills.%s.id", key)),
		Name:        v.GetString(fmt.Sprintf("skills.%s.name", key)),
		Description: ptr(v.GetString(fmt.Sprintf("skills.%s.description", key))),
		Tags:        v.GetStringSlice(fmt.Sprintf("skills.%s.tags", key)),
		Examples:    v.GetStringSlice(fmt.Sprintf("skills.%s.examples", key)),
		InputModes:  v.GetStringSlice(fmt.Sprintf("skills.%s.input_modes", key)),
		OutputModes: v.GetStringSlice(fmt.Sprintf("skills.%s.output_modes", key)),
	}
}

func ptr[T any](v T) *T {
	return &v
}
