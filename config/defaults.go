package config

func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		DataDirectory: GetDefaultDataDir(),
	}
}

func DefaultUserConfig() *UserConfig {
	return &UserConfig{
		Model: ModelConfig{
			Provider: "ollama",
			Host:     "http://localhost:11434",
			Name:     "llama3:latest",
		},
		Context: ContextConfig{
			Length:  2000,
			Heating: true,
		},
		Tools: ToolsConfig{
			Directory: "tools",
			Workers:   4,
			QueueSize: 16,
			Burst:     1,
		},
		Prompting: PromptingConfig{
			SystemPromptFile:       "system_prompt.txt",
			AdditionalContextsFile: "additional_contexts.txt",
			FirstMessageFile:       "first_message.txt",
		},
	}
}

func GenerateSystemConfigTemplate() string {
	return `# Abbas System Configuration
# Location: ~/.config/abbas/settings.toml
# This file uses TOML format: https://toml.io

# Directory holding config.toml, plugins.toml, messages.db and prompt files
data_directory = '` + GetDefaultDataDir() + `'
`
}

func GenerateUserConfigTemplate() string {
	return `# Abbas User Configuration
# Location: <data_directory>/config.toml
# Relative paths are resolved against <data_directory>.

[model]
# One of: ollama, openai, openrouter, anthropic
provider = "ollama"

# Server URL; leave empty to use the provider's default
host = "http://localhost:11434"

# Model name passed to the provider
name = "llama3:latest"

# Environment variable holding the API key (defaults per provider)
# api_key_env = "OPENAI_API_KEY"

[context]
# Prompt token budget for the context window
length = 2000

# Raise the temperature when the conversation repeats itself
heating = true

# Words inside *action* spans of the latest assistant message that switch
# on special mode; empty uses the built-in list
special_triggers = []

[tools]
# Directory of *.toml tool manifests
directory = "tools"

# Worker pool for synchronous tools
workers = 4
queue_size = 16

# Rate limit for outbound tool HTTP requests (0 disables)
requests_per_second = 0.0
burst = 1

[prompting]
system_prompt_file = "system_prompt.txt"
additional_contexts_file = "additional_contexts.txt"
first_message_file = "first_message.txt"

[metrics]
# Address for the Prometheus /metrics endpoint, e.g. "127.0.0.1:9464"
listen = ""
`
}
