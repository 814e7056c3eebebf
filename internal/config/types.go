// Package config resolves the effective configuration of a batch run.
//
// Three layers are merged key by key: built-in defaults, the on-disk
// configuration file (plus CHATBATCH_* environment variables and explicitly
// set CLI flags), and a caller-supplied override object that is applied to
// every request body last.
package config

import "time"

// Config is the file-level configuration loaded through koanf.
type Config struct {
	BaseURL        string            `koanf:"base_url" json:"base_url"`
	Endpoint       string            `koanf:"endpoint" json:"endpoint"`
	Timeout        time.Duration     `koanf:"timeout" json:"timeout"`
	MaxRetries     int               `koanf:"max_retries" json:"max_retries"`
	RetryBackoff   time.Duration     `koanf:"retry_backoff" json:"retry_backoff"`
	MaxConcurrency int               `koanf:"max_concurrency" json:"max_concurrency"`
	UsersFile      string            `koanf:"users_file" json:"users_file"`
	UserCount      int               `koanf:"user_count" json:"user_count"`
	PromptsFile    string            `koanf:"prompts_file" json:"prompts_file"`
	PromptSheet    string            `koanf:"prompt_sheet" json:"prompt_sheet"`
	ExportDir      string            `koanf:"export_dir" json:"export_dir"`
	LogDir         string            `koanf:"log_dir" json:"log_dir"`
	Verbose        bool              `koanf:"verbose" json:"-"`
	Models         []string          `koanf:"models" json:"models"`
	ChatModes      []string          `koanf:"chat_modes" json:"chat_modes"`
	Headers        map[string]string `koanf:"headers" json:"headers"`
	Body           map[string]any    `koanf:"body" json:"body"`

	// ProjectRoot anchors relative paths. It is the directory of the config
	// file when one was found, otherwise the working directory.
	ProjectRoot string `koanf:"-" json:"-"`
	// File is the config file that was loaded, empty if none.
	File string `koanf:"-" json:"config_file,omitempty"`
}

// RunConfig is the immutable, fully resolved configuration of one run.
type RunConfig struct {
	// URL is the chat-completion endpoint (base_url + endpoint).
	URL     string
	Headers map[string]string

	// Template is the request-body template: defaults overlaid by the file body.
	Template map[string]any
	// Overrides is the caller-supplied partial body, merged last.
	Overrides map[string]any

	Models         []string
	ChatModes      []string
	MaxConcurrency int

	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration

	UsersFile   string
	UserCount   int
	PromptsFile string
	PromptSheet string
	ExportDir   string
}
