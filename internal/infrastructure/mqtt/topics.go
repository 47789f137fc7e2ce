package mqtt

import "github.com/nerrad567/irrigation-core/internal/infrastructure/mqtt/topic"

// TopicPrefix is the base for topics owned by the controller itself.
const TopicPrefix = "irrigation"

// StatusTopic returns the retained online/offline status topic for a client.
//
// Example: irrigation/irrigation-controller/status
func StatusTopic(clientID string) string {
	return TopicPrefix + "/" + clientID + "/status"
}

// TopicMatches reports whether a concrete topic matches a subscription filter.
func TopicMatches(filter, name string) bool {
	return topic.Match(filter, name)
}
