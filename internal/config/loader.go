package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Config file names searched in the working directory when none is given.
const (
	ConfigFileName    = "chatbatch.yaml"
	ConfigFileNameAlt = "chatbatch.yml"
)

// EnvPrefix is the prefix of environment variables mapped onto config keys.
const EnvPrefix = "CHATBATCH_"

// flagKeys maps CLI flag names onto config keys. Flags not listed here are
// not configuration and are ignored by the loader.
var flagKeys = map[string]string{
	"base-url":        "base_url",
	"endpoint":        "endpoint",
	"timeout":         "timeout",
	"max-retries":     "max_retries",
	"max-concurrency": "max_concurrency",
	"users":           "users_file",
	"user-count":      "user_count",
	"prompts":         "prompts_file",
	"sheet":           "prompt_sheet",
	"export-dir":      "export_dir",
	"log-dir":         "log_dir",
	"models":          "models",
	"chat-modes":      "chat_modes",
	"verbose":         "verbose",
}

// pathFlags are flags whose values are paths relative to the working directory.
var pathFlags = []string{"users", "prompts", "export-dir", "log-dir"}

// findConfigFile returns the config file to use.
// Priority: explicit path > chatbatch.yaml > chatbatch.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Load reads configuration from defaults, file, environment, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults.
// flags may be nil.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(defaultValues(), "."), nil); err != nil {
		return nil, &Error{Source: "defaults", Err: err}
	}

	// 2. Config file
	used := findConfigFile(cfgFile)
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, &Error{Source: used, Err: fmt.Errorf("read config file: %w", err)}
		}
	}

	// 3. Environment (CHATBATCH_MAX_CONCURRENCY -> max_concurrency)
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, &Error{Source: "environment", Err: err}
	}

	// 4. Flags, only those explicitly set
	flagPaths := map[string]string{}
	if flags != nil {
		for _, name := range pathFlags {
			if f := flags.Lookup(name); f != nil && f.Changed && f.Value.String() != "" {
				if abs, err := filepath.Abs(f.Value.String()); err == nil {
					flagPaths[flagKeys[name]] = abs
				}
			}
		}
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, &Error{Source: "flags", Err: err}
		}
	}

	// 5. Decode
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			Result:           &cfg,
			WeaklyTypedInput: true,
		},
	}); err != nil {
		source := used
		if source == "" {
			source = "configuration"
		}
		return nil, &Error{Source: source, Err: fmt.Errorf("decode: %w", err)}
	}

	// 6. Anchor relative paths at the config file's directory.
	cfg.File = used
	cfg.ProjectRoot = projectRoot(used)
	resolve := func(key string, p *string) {
		if abs, ok := flagPaths[key]; ok {
			*p = abs
			return
		}
		*p = resolvePathRelativeTo(*p, cfg.ProjectRoot)
	}
	resolve("users_file", &cfg.UsersFile)
	resolve("prompts_file", &cfg.PromptsFile)
	resolve("export_dir", &cfg.ExportDir)
	resolve("log_dir", &cfg.LogDir)

	return &cfg, nil
}

func projectRoot(cfgFile string) string {
	if cfgFile != "" {
		if abs, err := filepath.Abs(cfgFile); err == nil {
			return filepath.Dir(abs)
		}
	}
	cwd, err := os.Getwd()
	if err != nil || cwd == "" {
		return "."
	}
	return cwd
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty or already absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// Resolve merges cfg with the caller's override string into a RunConfig.
// The override must be a JSON (or YAML flow) mapping; an empty string means
// no override.
func Resolve(cfg *Config, override string) (*RunConfig, error) {
	if cfg == nil {
		return nil, &Error{Err: errors.New("configuration is required")}
	}

	overrides, err := ParseOverride(override)
	if err != nil {
		return nil, err
	}

	endpoint, err := endpointURL(cfg.BaseURL, cfg.Endpoint)
	if err != nil {
		return nil, &Error{Source: sourceOf(cfg), Err: err}
	}

	headers := DefaultHeaders()
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	backoff := cfg.RetryBackoff
	if backoff < 0 {
		backoff = 0
	}

	return &RunConfig{
		URL:            endpoint,
		Headers:        headers,
		Template:       MergeBody(DefaultBody(), cfg.Body),
		Overrides:      overrides,
		Models:         orderedSet(cfg.Models),
		ChatModes:      orderedSet(cfg.ChatModes),
		MaxConcurrency: ClampConcurrency(cfg.MaxConcurrency),
		Timeout:        timeout,
		MaxRetries:     max(cfg.MaxRetries, 0),
		RetryBackoff:   backoff,
		UsersFile:      cfg.UsersFile,
		UserCount:      max(cfg.UserCount, 0),
		PromptsFile:    cfg.PromptsFile,
		PromptSheet:    strings.TrimSpace(cfg.PromptSheet),
		ExportDir:      cfg.ExportDir,
	}, nil
}

func sourceOf(cfg *Config) string {
	if cfg.File != "" {
		return cfg.File
	}
	return "configuration"
}

// orderedSet trims values and drops blanks and duplicates, keeping first-seen order.
func orderedSet(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
