package mqtt

// defaultTopicPrefix is used when the config leaves topic_prefix empty.
const defaultTopicPrefix = "vitalsync"

// normalisePrefix returns the configured prefix or the default.
func normalisePrefix(prefix string) string {
	if prefix == "" {
		return defaultTopicPrefix
	}
	return prefix
}

// availabilityTopic is where online/offline presence is published (retained).
//
// Example: vitalsync/availability
func availabilityTopic(prefix string) string {
	return normalisePrefix(prefix) + "/availability"
}

// StatusTopic is where pass summaries are published (retained).
//
// Example: vitalsync/status
func StatusTopic(prefix string) string {
	return normalisePrefix(prefix) + "/status"
}
