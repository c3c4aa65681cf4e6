package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// render writes v in the requested format.
func render(w io.Writer, format string, v interface{}) error {
	switch strings.ToLower(format) {
	case "", "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q (use json or yaml)", format)
	}
}

// parseFields turns repeated key=value flags into a map.
func parseFields(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid field %q (want key=value)", p)
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}

// parseSynonyms turns repeated key=a|b flags into a synonym map.
func parseSynonyms(pairs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid synonym %q (want key=a|b)", p)
		}
		for _, s := range strings.Split(v, "|") {
			if s = strings.TrimSpace(s); s != "" {
				out[k] = append(out[k], s)
			}
		}
	}
	return out, nil
}
