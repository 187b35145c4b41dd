// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import "strings"

const sharedPrefix = "$share/"

// IsTopicFilterMatch checks if a topic name matches a topic filter.
func IsTopicFilterMatch(topicFilter, topicName string) bool {
	// Shared subscriptions match on the filter after the group name.
	if tf, ok := strings.CutPrefix(topicFilter, sharedPrefix); ok {
		idx := strings.Index(tf, "/")
		if idx == -1 {
			return false
		}
		topicFilter = tf[idx+1:]
	}

	// Wildcards never match topics beginning with $ (MQTT v5 4.7.2).
	if strings.HasPrefix(topicName, "$") &&
		(strings.HasPrefix(topicFilter, "+") ||
			strings.HasPrefix(topicFilter, "#")) {
		return false
	}

	filters := strings.Split(topicFilter, "/")
	names := strings.Split(topicName, "/")

	for i, filter := range filters {
		switch filter {
		case "#":
			// Multi-level wildcard must be last; it also matches the parent.
			return i == len(filters)-1
		case "+":
			if i >= len(names) {
				return false
			}
		default:
			if i >= len(names) || filter != names[i] {
				return false
			}
		}
	}

	return len(filters) == len(names)
}
