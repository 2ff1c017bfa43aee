package config

import (
	"fmt"
	"strings"
)

// ParseBool accepts TRUE, T, 1, YES, Y and FALSE, F, 0, NO, N in any case.
// Anything else is an error.
func ParseBool(value string) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "TRUE", "T", "1", "YES", "Y":
		return true, nil
	case "FALSE", "F", "0", "NO", "N":
		return false, nil
	}
	return false, fmt.Errorf("%q is not a boolean value", value)
}

// overlayEnv copies every variable named prefix+NAME into dst as a dotted,
// lower case key: KAFKA_CONSUMER_GROUP_ID=x becomes group.id=x.
func overlayEnv(dst map[string]string, environ []string, prefix string) {
	for _, entry := range environ {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(key, prefix) || key == prefix {
			continue
		}
		dst[dottedKey(strings.TrimPrefix(key, prefix))] = value
	}
}

func dottedKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), "_", ".")
}

// flatten turns a nested file section into dotted keys. Both
// "bootstrap.servers" and "bootstrap_servers" spellings are accepted.
func flatten(section map[string]any) map[string]string {
	out := make(map[string]string)
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			key := dottedKey(k)
			if prefix != "" {
				key = prefix + "." + key
			}
			if nested, ok := v.(map[string]any); ok {
				walk(key, nested)
				continue
			}
			out[key] = fmt.Sprint(v)
		}
	}
	walk("", section)
	return out
}
