// Package tcpstate provides the connection-state enumeration and string
// conversions driven by the Session Manager's transition table.
package tcpstate

import "fmt"

// State is the enumeration of a flow's position in the TCP state machine,
// as observed passively (there is no LISTEN state: observation begins at
// the first SYN of a connection already in flight, never before it).
type State int32

const (
	INVALID State = iota
	SYN_SENT
	SYN_RCVD
	ESTABLISHED
	FIN_WAIT_1
	FIN_WAIT_2
	CLOSING
	TIME_WAIT
	CLOSE_WAIT
	LAST_ACK
	CLOSED
	RESET
)

var stateName = map[State]string{
	INVALID:     "INVALID",
	SYN_SENT:    "SYN_SENT",
	SYN_RCVD:    "SYN_RCVD",
	ESTABLISHED: "ESTABLISHED",
	FIN_WAIT_1:  "FIN_WAIT_1",
	FIN_WAIT_2:  "FIN_WAIT_2",
	CLOSING:     "CLOSING",
	TIME_WAIT:   "TIME_WAIT",
	CLOSE_WAIT:  "CLOSE_WAIT",
	LAST_ACK:    "LAST_ACK",
	CLOSED:      "CLOSED",
	RESET:       "RESET",
}

func (s State) String() string {
	name, ok := stateName[s]
	if !ok {
		return fmt.Sprintf("UNKNOWN_STATE_%d", s)
	}
	return name
}

// Terminal reports whether a flow in this state will never transition
// again and is only waiting to be destroyed: CLOSED and RESET. TIME_WAIT
// is not terminal, since a new SYN on the same 5-tuple replaces the flow.
func (s State) Terminal() bool {
	return s == CLOSED || s == RESET
}
