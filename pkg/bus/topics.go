package bus

import (
	"fmt"
	"strings"
)

// Devices publish readings on <namespace>/device/<deviceId>/telemetry and
// listen for commands on <namespace>/device/<deviceId>/cmd.

// DefaultNamespace is the topic namespace used unless configured otherwise.
const DefaultNamespace = "drip"

// telemetrySuffix is the final topic segment of reading messages.
const telemetrySuffix = "telemetry"

// TelemetryPattern returns the wildcard filter matching every device's
// telemetry sub-topic in the namespace.
func TelemetryPattern(namespace string) string {
	return fmt.Sprintf("%s/device/+/%s", namespace, telemetrySuffix)
}

// TelemetryTopic returns the telemetry topic of one device.
func TelemetryTopic(namespace, deviceID string) string {
	return fmt.Sprintf("%s/device/%s/%s", namespace, deviceID, telemetrySuffix)
}

// CommandTopic returns the command topic of one device.
func CommandTopic(namespace, deviceID string) string {
	return fmt.Sprintf("%s/device/%s/cmd", namespace, deviceID)
}

// ParseDeviceTopic extracts the device id segment and whether the topic is
// a telemetry sub-topic. The device id is the third path segment; an empty
// segment yields ok=false.
func ParseDeviceTopic(topic string) (deviceID string, telemetry bool, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 4 || parts[2] == "" {
		return "", false, false
	}
	return parts[2], parts[3] == telemetrySuffix, true
}
