package protocol

import "testing"

func feedAll(m *Machine, lines ...string) {
	for _, l := range lines {
		if m.Done() {
			return
		}
		m.Feed(l)
	}
}

func TestMachineWaitsForAck(t *testing.T) {
	m := &Machine{}
	// Status lines before the ack belong to a previous command.
	for _, l := range []string{"t10 128\r\n", "ack", "ack\n", "ACK\r\n", "s1 0\r\n"} {
		if ev := m.Feed(l); ev != EventIgnored {
			t.Fatalf("Feed(%q) = %v, want EventIgnored", l, ev)
		}
	}
	if m.State() != StateAwaitAck {
		t.Fatalf("expected AwaitAck, got %s", m.State())
	}
	if ev := m.Feed("ack\r\n"); ev != EventAcked {
		t.Fatalf("expected EventAcked, got %v", ev)
	}
	if m.State() != StatePolling {
		t.Fatalf("expected Polling, got %s", m.State())
	}
}

func TestMachineTermination(t *testing.T) {
	tests := []struct {
		name     string
		lines    []string
		wantDone bool
		wantPWM  int
	}{
		{"stepping to zero", []string{"ack\r\n", "s50 0\r\n"}, true, 0},
		{"off then tracking", []string{"ack\r\n", "o10 5\r\n", "t10 128\r\n"}, true, 128},
		{"stepping to max", []string{"ack\r\n", "s50 120\r\n", "s50 200\r\n", "s50 255\r\n"}, true, 255},
		{"malformed lines skipped", []string{"ack\r\n", "garbage\r\n", "t10\r\n", "t10 77\r\n"}, true, 77},
		{"off never terminates", []string{"ack\r\n", "o10 0\r\n", "o10 255\r\n"}, false, 255},
		{"stepping mid sweep", []string{"ack\r\n", "s10 1\r\n", "s10 254\r\n"}, false, 254},
		{"no ack", []string{"t10 128\r\n", "s50 0\r\n"}, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Machine{}
			feedAll(m, tt.lines...)
			if m.Done() != tt.wantDone {
				t.Fatalf("Done() = %v, want %v", m.Done(), tt.wantDone)
			}
			if m.PWM() != tt.wantPWM {
				t.Errorf("PWM() = %d, want %d", m.PWM(), tt.wantPWM)
			}
		})
	}
}

func TestMachineMalformedKeepsLast(t *testing.T) {
	m := &Machine{}
	m.Feed(AckLine)
	m.Feed("s10 40\r\n")
	if ev := m.Feed("s10 x\r\n"); ev != EventMalformed {
		t.Fatalf("expected EventMalformed, got %v", ev)
	}
	last, ok := m.Last()
	if !ok || last.PWM != 40 {
		t.Fatalf("expected last pwm 40, got %+v (ok=%v)", last, ok)
	}
	if ev := m.Feed("t10 41\r\n"); ev != EventFinished {
		t.Fatalf("expected EventFinished, got %v", ev)
	}
	if ev := m.Feed("t10 42\r\n"); ev != EventIgnored {
		t.Fatalf("lines after done should be ignored, got %v", ev)
	}
	if m.PWM() != 41 {
		t.Fatalf("expected pwm 41, got %d", m.PWM())
	}
}
