package agent

import "encoding/json"

// Outbound message types.
const (
	TypeSettings             = "Settings"
	TypeKeepAlive            = "KeepAlive"
	TypeUpdatePrompt         = "UpdatePrompt"
	TypeUpdateSpeak          = "UpdateSpeak"
	TypeFunctionCallResponse = "FunctionCallResponse"
)

// Inbound message types.
const (
	TypeWelcome             = "Welcome"
	TypeSettingsApplied     = "SettingsApplied"
	TypeConversationText    = "ConversationText"
	TypeUserStartedSpeaking = "UserStartedSpeaking"
	TypeAgentThinking       = "AgentThinking"
	TypeAgentStartedSpeak   = "AgentStartedSpeaking"
	TypeAgentAudioDone      = "AgentAudioDone"
	TypeFunctionCallRequest = "FunctionCallRequest"
	TypeError               = "Error"
)

// AudioFormat describes one direction of the PCM stream.
type AudioFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
	Container  string `json:"container,omitempty"`
}

// AudioConfig is the audio section of the Settings handshake.
type AudioConfig struct {
	Input  AudioFormat `json:"input"`
	Output AudioFormat `json:"output"`
}

// Provider selects a model for one leg of the agent (listen/think/speak).
type Provider struct {
	Type  string `json:"type,omitempty"`
	Model string `json:"model,omitempty"`
}

// ListenConfig configures the agent's speech recognition leg.
type ListenConfig struct {
	Provider Provider `json:"provider"`
}

// ThinkConfig configures the agent's reasoning leg, including the operating
// prompt and the functions it may call back into this client.
type ThinkConfig struct {
	Provider  Provider      `json:"provider"`
	Prompt    string        `json:"prompt,omitempty"`
	Functions []FunctionDef `json:"functions,omitempty"`
}

// SpeakConfig configures the agent's synthesis leg.
type SpeakConfig struct {
	Provider Provider `json:"provider"`
}

// AgentConfig is the agent section of the Settings handshake.
type AgentConfig struct {
	Language string       `json:"language,omitempty"`
	Listen   ListenConfig `json:"listen"`
	Think    ThinkConfig  `json:"think"`
	Speak    SpeakConfig  `json:"speak"`
	Greeting string       `json:"greeting,omitempty"`
}

// SettingsMessage is the handshake sent exactly once after the connection opens.
type SettingsMessage struct {
	Type  string      `json:"type"`
	Audio AudioConfig `json:"audio"`
	Agent AgentConfig `json:"agent"`
}

// KeepAliveMessage is the periodic heartbeat.
type KeepAliveMessage struct {
	Type string `json:"type"`
}

// UpdatePromptMessage replaces the agent's operating instructions mid-session.
type UpdatePromptMessage struct {
	Type   string `json:"type"`
	Prompt string `json:"prompt"`
}

// UpdateSpeakMessage switches the synthesis voice mid-session.
type UpdateSpeakMessage struct {
	Type  string `json:"type"`
	Model string `json:"model"`
}

// FunctionDef declares one callable function in the Settings handshake.
type FunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  ParameterSchema `json:"parameters"`
}

// ParameterSchema is the JSON-schema-shaped argument declaration.
type ParameterSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property describes one argument field.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// FunctionCall is one invocation inside a FunctionCallRequest. Arguments is a
// JSON-encoded object string, exactly as transmitted.
type FunctionCall struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Arguments  string `json:"arguments"`
	ClientSide bool   `json:"client_side"`
}

// FunctionCallRequest carries one or more invocations from the agent.
type FunctionCallRequest struct {
	Type      string         `json:"type"`
	Functions []FunctionCall `json:"functions"`
}

// FunctionCallResponse acknowledges exactly one invocation, correlated by id.
// Content is "success" or "error".
type FunctionCallResponse struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// NewFunctionCallResponse builds a correlated acknowledgement.
func NewFunctionCallResponse(id, name, content string) FunctionCallResponse {
	return FunctionCallResponse{Type: TypeFunctionCallResponse, ID: id, Name: name, Content: content}
}

// ConversationText is an inbound transcript fragment with a speaker role.
type ConversationText struct {
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ErrorMessage is an inbound protocol-level error report.
type ErrorMessage struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Code        string `json:"code,omitempty"`
}

// envelope is used to peek at the type tag of an inbound text frame.
type envelope struct {
	Type string `json:"type"`
}

func messageType(data []byte) (string, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", err
	}
	return env.Type, nil
}
