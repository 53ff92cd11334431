package mqtt

import (
	"fmt"
	"strings"
)

// Namespace is the fixed root of the topic tree: pixoo/<deviceId>/<section>[/<action>].
const Namespace = "pixoo"

// Topic is a parsed inbound command address.
type Topic struct {
	DeviceID string
	Section  string
	Action   string
}

// ParseTopic splits an inbound topic string. Malformed topics (wrong
// namespace, missing device or section segment) return an error;
// Router.Dispatch logs such a topic and drops it without publishing
// an error event.
func ParseTopic(topic string) (Topic, error) {
	parts := strings.Split(strings.Trim(topic, "/"), "/")
	if len(parts) < 3 || parts[0] != Namespace {
		return Topic{}, fmt.Errorf("malformed topic %q: expected %s/<deviceId>/<section>[/<action>]", topic, Namespace)
	}
	t := Topic{DeviceID: parts[1], Section: parts[2]}
	if len(parts) >= 4 {
		t.Action = parts[3]
	}
	return t, nil
}

// SubscriptionFilter is the single wildcard subscription covering
// every device and section the router handles, with or without a
// trailing action segment.
func SubscriptionFilter() string {
	return Namespace + "/+/#"
}

// OutboundTopic builds pixoo/<deviceId>/<event>, used for ok/error/metrics/scene-state publishes.
func OutboundTopic(deviceID, event string) string {
	return fmt.Sprintf("%s/%s/%s", Namespace, deviceID, event)
}
