package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"gopkg.in/yaml.v3"
)

// MergeBody shallow-merges layers into a new map. Later layers win key by
// key; nested values are replaced, never merged. Nil layers are skipped.
func MergeBody(layers ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, layer := range layers {
		for k, v := range layer {
			out[k] = v
		}
	}
	return out
}

// ParseOverride parses a caller-supplied partial body such as
// {"model_name":"x","temperature":0.6}. JSON is accepted as is; YAML flow
// syntax is tolerated. Blank input yields a nil map.
func ParseOverride(s string) (map[string]any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var raw any
	if err := yaml.Unmarshal([]byte(s), &raw); err != nil {
		return nil, &Error{Source: "override", Err: fmt.Errorf("malformed override: %w", err)}
	}

	switch m := raw.(type) {
	case map[string]any:
		return m, nil
	case nil:
		return nil, nil
	default:
		return nil, &Error{Source: "override", Err: fmt.Errorf("override must be an object, got %T", raw)}
	}
}

func endpointURL(baseURL, endpoint string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return "", errors.New("base_url is required")
	}
	endpoint = strings.TrimSpace(endpoint)
	if endpoint != "" && !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}

	full := base + endpoint
	u, err := url.Parse(full)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint URL %q: %w", full, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("endpoint URL %q must use http or https", full)
	}
	if u.Host == "" {
		return "", fmt.Errorf("endpoint URL %q has no host", full)
	}
	return full, nil
}
