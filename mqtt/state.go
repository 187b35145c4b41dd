// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

// State is the connection state of a Subscriber.
type State int32

const (
	// Disconnected: no live session; a connect attempt is pending.
	Disconnected State = iota

	// Connecting: a CONNECT or SUBSCRIBE is in flight.
	Connecting

	// Connected: the session is up and the topic filter is subscribed.
	Connected

	// ShuttingDown: Run's context ended and the session is being closed.
	ShuttingDown

	// Stopped: Run has returned. This state is terminal.
	Stopped
)

var stateNames = [...]string{
	Disconnected: "disconnected",
	Connecting:   "connecting",
	Connected:    "connected",
	ShuttingDown: "shutting_down",
	Stopped:      "stopped",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
