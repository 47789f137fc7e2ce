// Package topic implements MQTT topic filter matching.
//
// It has no dependencies so configuration validation can use it without
// importing the client.
package topic

import "strings"

// Match reports whether a concrete topic name matches a subscription filter.
//
// Supports the MQTT wildcards:
//   - + matches exactly one level
//   - # matches the parent level and everything below it (must be last)
func Match(filter, name string) bool {
	if filter == name {
		return true
	}

	fp := strings.Split(filter, "/")
	tp := strings.Split(name, "/")

	for i, f := range fp {
		if f == "#" {
			return i == len(fp)-1
		}
		if i >= len(tp) {
			return false
		}
		if f != "+" && f != tp[i] {
			return false
		}
	}
	return len(fp) == len(tp)
}
