package dlprobe

import (
	"errors"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"valid", Config{Hostname: "example.org", Port: "443"}, true},
		{"empty port uses scheme default", Config{Hostname: "example.org"}, true},
		{"missing hostname", Config{Port: "443"}, false},
		{"non-numeric port", Config{Hostname: "example.org", Port: "https"}, false},
		{"port zero", Config{Hostname: "example.org", Port: "0"}, false},
		{"port out of range", Config{Hostname: "example.org", Port: "70000"}, false},
		{"negative duration", Config{Hostname: "example.org", Duration: -1}, false},
	}
	for _, tc := range cases {
		err := tc.cfg.validate()
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if !tc.ok {
			if err == nil {
				t.Fatalf("%s: expected an error", tc.name)
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("%s: expected ErrInvalidConfig, got %v", tc.name, err)
			}
		}
	}
}
