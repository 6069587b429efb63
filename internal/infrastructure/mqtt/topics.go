package mqtt

import "fmt"

// TopicPrefix is the root of every wtap topic.
//
// Each adapter owns one subtree: wtap/{device_id}/...
const TopicPrefix = "wtap"

// Topics builds the topic names of one adapter.
//
//	topics := mqtt.Topics{Device: "wtap-3c71bf"}
//	topics.Event("sta_connected")
//	// Returns: "wtap/wtap-3c71bf/event/sta_connected"
type Topics struct {
	Device string
}

func (t Topics) base() string {
	return fmt.Sprintf("%s/%s", TopicPrefix, t.Device)
}

// Command returns the topic the adapter receives command envelopes on.
//
// Example: wtap/wtap-3c71bf/command
func (t Topics) Command() string {
	return t.base() + "/command"
}

// Response returns the topic command replies are published on.
//
// Example: wtap/wtap-3c71bf/response
func (t Topics) Response() string {
	return t.base() + "/response"
}

// Event returns the topic for one kind of state-change notification.
//
// Example: wtap/wtap-3c71bf/event/ap_started
func (t Topics) Event(name string) string {
	return fmt.Sprintf("%s/event/%s", t.base(), name)
}

// AllEvents returns a wildcard matching every event of the adapter.
//
// Example: wtap/wtap-3c71bf/event/+
func (t Topics) AllEvents() string {
	return t.base() + "/event/+"
}

// Status returns the retained online/offline topic, also used for the LWT.
//
// Example: wtap/wtap-3c71bf/status
func (t Topics) Status() string {
	return t.base() + "/status"
}

// AllDevices returns a wildcard matching every topic of every adapter.
func (Topics) AllDevices() string {
	return TopicPrefix + "/#"
}
