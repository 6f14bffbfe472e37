package broker

import "strings"

// Canonical topic builders (spec.md section 6). Kept in one place so the
// Hub, Node, and DLM Service never hand-format a topic string themselves.

// HubInfoTopic is the retained hub identity topic.
func HubInfoTopic(hubID string) string { return "iot/hubs/" + hubID + "/info" }

// HubStatusTopic is the hub's non-retained status topic.
func HubStatusTopic(hubID string) string { return "iot/hubs/" + hubID + "/status" }

// NodeInfoTopic is the retained per-node identity topic.
func NodeInfoTopic(hubID, nodeID string) string {
	return "iot/hubs/" + hubID + "/nodes/" + nodeID + "/info"
}

// NodeStatusTopic is the per-node non-retained status topic.
func NodeStatusTopic(hubID, nodeID string) string {
	return "iot/hubs/" + hubID + "/nodes/" + nodeID + "/status"
}

// NodeTelemetryTopic is the per-node periodic telemetry topic.
func NodeTelemetryTopic(hubID, nodeID string) string {
	return "iot/hubs/" + hubID + "/nodes/" + nodeID + "/telemetry"
}

// DLMEventsTopic is the hub's DLM notification topic.
func DLMEventsTopic(hubID string) string { return "iot/hubs/" + hubID + "/dlm/events" }

// RequestsTopic is the topic vehicles publish charging requests to.
func RequestsTopic(hubID string) string { return "iot/hubs/" + hubID + "/requests" }

// VehicleTelemetryTopic is the topic a specific vehicle publishes telemetry to.
func VehicleTelemetryTopic(vehicleID string) string {
	return "iot/vehicles/" + vehicleID + "/telemetry"
}

// Match reports whether topic satisfies subscription filter, where filter
// may use `+` as a single-segment wildcard (spec.md section 6: "`+` marks
// a single-segment wildcard on subscriptions").
func Match(filter, topic string) bool {
	fParts := strings.Split(filter, "/")
	tParts := strings.Split(topic, "/")
	if len(fParts) != len(tParts) {
		return false
	}
	for i, f := range fParts {
		if f == "+" {
			continue
		}
		if f != tParts[i] {
			return false
		}
	}
	return true
}
