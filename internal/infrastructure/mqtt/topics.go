package mqtt

import "fmt"

// TopicPrefixStatus is the base for collector presence topics.
const TopicPrefixStatus = "telemetry/status"

// Topics provides builders for the topics this package publishes itself.
// Device data topics are described by the topic package.
type Topics struct{}

// Status returns the retained presence topic for a client.
//
// Example: telemetry/status/data-collector-realtime
func (Topics) Status(clientID string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixStatus, clientID)
}

// AllStatus returns a wildcard matching every collector's presence topic.
func (Topics) AllStatus() string {
	return TopicPrefixStatus + "/+"
}
