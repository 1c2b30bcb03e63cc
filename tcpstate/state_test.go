package tcpstate

import "testing"

func TestStringKnownStates(t *testing.T) {
	cases := map[State]string{
		SYN_SENT:    "SYN_SENT",
		ESTABLISHED: "ESTABLISHED",
		TIME_WAIT:   "TIME_WAIT",
		RESET:       "RESET",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}

func TestStringUnknownState(t *testing.T) {
	if got := State(99).String(); got != "UNKNOWN_STATE_99" {
		t.Errorf("State(99).String() = %q, want UNKNOWN_STATE_99", got)
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []State{CLOSED, RESET} {
		if !s.Terminal() {
			t.Errorf("%v.Terminal() = false, want true", s)
		}
	}
	for _, s := range []State{SYN_SENT, ESTABLISHED, TIME_WAIT} {
		if s.Terminal() {
			t.Errorf("%v.Terminal() = true, want false", s)
		}
	}
}
