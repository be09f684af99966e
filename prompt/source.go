package prompt

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"abbas/config"
)

// Source supplies the prompting files for each build.
type Source interface {
	Load() (systemPrompt string, contexts []AdditionalContext)
}

// FileSource reads the prompting files from disk on every call, so edits
// apply to the next reply without a restart. Missing or malformed files
// yield an empty prompt and no contexts.
type FileSource struct {
	SystemPromptFile string
	ContextsFile     string
	FirstMessageFile string
}

type contextsFile struct {
	AdditionalContexts []AdditionalContext `json:"additional_contexts" yaml:"additional_contexts"`
}

func (s FileSource) Load() (string, []AdditionalContext) {
	return s.systemPrompt(), s.contexts()
}

func (s FileSource) systemPrompt() string {
	if s.SystemPromptFile == "" {
		return ""
	}
	data, err := os.ReadFile(s.SystemPromptFile)
	if err != nil {
		if !os.IsNotExist(err) && config.DebugLog != nil {
			config.DebugLog.Printf("[Prompt] Failed to read system prompt: %v", err)
		}
		return ""
	}
	return string(data)
}

func (s FileSource) contexts() []AdditionalContext {
	if s.ContextsFile == "" {
		return nil
	}
	data, err := os.ReadFile(s.ContextsFile)
	if err != nil {
		if !os.IsNotExist(err) && config.DebugLog != nil {
			config.DebugLog.Printf("[Prompt] Failed to read additional contexts: %v", err)
		}
		return nil
	}

	var file contextsFile
	switch strings.ToLower(filepath.Ext(s.ContextsFile)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &file)
	default:
		err = json.Unmarshal(data, &file)
	}
	if err != nil {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Prompt] Failed to parse %s: %v", s.ContextsFile, err)
		}
		return nil
	}
	return file.AdditionalContexts
}

// FirstMessage returns the greeting the assistant opens a conversation with.
func (s FileSource) FirstMessage() (string, bool) {
	if s.FirstMessageFile == "" {
		return "", false
	}
	data, err := os.ReadFile(s.FirstMessageFile)
	if err != nil {
		return "", false
	}
	return string(data), true
}

// Static is a Source with fixed content.
type Static struct {
	SystemPrompt string
	Contexts     []AdditionalContext
}

func (s Static) Load() (string, []AdditionalContext) {
	return s.SystemPrompt, s.Contexts
}
