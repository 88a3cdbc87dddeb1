package components

import (
	"strings"
	"testing"
	"time"
)

func TestPrintable(t *testing.T) {
	tests := []struct {
		in   []byte
		want string
	}{
		{[]byte("Hello"), "Hello"},
		{[]byte("OK\r\n"), "OK.."},
		{[]byte{0x00, 0x7f, 'a', 0xff}, "..a."},
		{nil, ""},
	}

	for _, tt := range tests {
		if got := Printable(tt.in); got != tt.want {
			t.Errorf("Printable(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatMessage(t *testing.T) {
	msg := DataReceivedMsg{
		Timestamp: time.Date(2025, 1, 2, 13, 4, 5, 6_000_000, time.UTC),
		Data:      []byte("AB\n"),
	}

	tests := []struct {
		name string
		mode DisplayMode
		want string
	}{
		{"hex and ascii", DisplayMode{ShowHex: true, ShowASCII: true}, "HEX: 41 42 0A  ASCII: AB."},
		{"hex only", DisplayMode{ShowHex: true}, "HEX: 41 42 0A"},
		{"ascii only", DisplayMode{ShowASCII: true}, "ASCII: AB."},
		{"neither", DisplayMode{}, "BYTES: 3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewDataFormatter(tt.mode).FormatMessage(msg); got != tt.want {
				t.Errorf("FormatMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatMessageDecorations(t *testing.T) {
	df := NewDataFormatter(DisplayMode{ShowASCII: true, ShowTimestamps: true, ShowIndicators: true})
	ts := time.Date(2025, 1, 2, 13, 4, 5, 6_000_000, time.UTC)

	rx := df.FormatMessage(DataReceivedMsg{Timestamp: ts, Data: []byte("x")})
	for _, part := range []string{"[13:04:05.006]", "RX", "ASCII: x"} {
		if !strings.Contains(rx, part) {
			t.Errorf("RX line %q missing %q", rx, part)
		}
	}

	statuses := map[TxStatus]string{TxPending: "TX ○", TxWritten: "TX ✓", TxFailed: "TX ✗"}
	for status, want := range statuses {
		tx := df.FormatMessage(DataReceivedMsg{Timestamp: ts, Data: []byte("x"), IsTX: true, Status: status})
		if !strings.Contains(tx, want) {
			t.Errorf("TX line with status %d = %q, want it to contain %q", status, tx, want)
		}
	}

	df.ToggleTimestamps()
	df.ToggleIndicators()
	if got := df.FormatMessage(DataReceivedMsg{Timestamp: ts, Data: []byte("x")}); got != "ASCII: x" {
		t.Errorf("undecorated line = %q, want %q", got, "ASCII: x")
	}
}
