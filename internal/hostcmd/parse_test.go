package hostcmd

import (
	"errors"
	"testing"
	"time"

	serial "github.com/allbin/go-serialhost"
	"github.com/allbin/go-serialhost/manager"
	"github.com/google/go-cmp/cmp"
)

func TestParseHex(t *testing.T) {
	tests := []struct {
		in      string
		want    []byte
		wantErr bool
	}{
		{"48656c6c6f", []byte("Hello"), false},
		{"0x48 0x69", []byte("Hi"), false},
		{"DE AD BE EF", []byte{0xde, 0xad, 0xbe, 0xef}, false},
		{"", []byte{}, false},
		{"abc", nil, true},
		{"zz", nil, true},
	}

	for _, tt := range tests {
		got, err := ParseHex(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseHex(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr {
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseHex(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
		}
	}
}

func TestParseSignalState(t *testing.T) {
	tests := []struct {
		in      string
		want    bool
		wantErr bool
	}{
		{"high", true, false},
		{"ON", true, false},
		{"1", true, false},
		{"low", false, false},
		{"false", false, false},
		{"maybe", false, true},
	}
	for _, tt := range tests {
		got, err := ParseSignalState(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseSignalState(%q) = %v, %v; want %v, wantErr %v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestParseTimeout(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"100", 100 * time.Millisecond, false},
		{"1.5s", 1500 * time.Millisecond, false},
		{"0", 0, false},
		{"-5", 0, true},
		{"soon", 0, true},
	}
	for _, tt := range tests {
		got, err := parseTimeout(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseTimeout(%q) = %v, %v; want %v, wantErr %v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"1", 1, false},
		{"1024", 1024, false},
		{"1048576", manager.MaxChunkSize, false},
		{"1048577", 0, true},
		{"2000000000", 0, true},
		{"0", 0, true},
		{"-3", 0, true},
		{"lots", 0, true},
	}
	for _, tt := range tests {
		got, err := parseSize(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseSize(%q) = %v, %v; want %v, wantErr %v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}

	if _, err := parseSize("2000000000"); !errors.Is(err, serial.ErrInvalidConfig) {
		t.Errorf("parseSize(2000000000) error = %v, want ErrInvalidConfig", err)
	}
}

func TestFormatSignalState(t *testing.T) {
	if FormatSignalState(true) != "HIGH" || FormatSignalState(false) != "LOW" {
		t.Error("FormatSignalState returned unexpected labels")
	}
}
