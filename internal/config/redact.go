package config

import (
	"maps"
	"strings"
)

// redactedValue replaces secret header values in displayed configuration.
const redactedValue = "********"

// sensitiveHeaderParts mark header names whose values are secrets.
var sensitiveHeaderParts = []string{"auth", "token", "key", "secret", "cookie", "password"}

// Redacted returns a copy of cfg that is safe to display: values of headers
// that look like credentials are masked.
func (c *Config) Redacted() *Config {
	out := *c
	out.Models = append([]string(nil), c.Models...)
	out.ChatModes = append([]string(nil), c.ChatModes...)
	out.Body = maps.Clone(c.Body)
	out.Headers = make(map[string]string, len(c.Headers))
	for k, v := range c.Headers {
		if isSensitiveHeader(k) {
			v = redactedValue
		}
		out.Headers[k] = v
	}
	return &out
}

func isSensitiveHeader(name string) bool {
	lower := strings.ToLower(name)
	for _, part := range sensitiveHeaderParts {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}
