package httputil

import (
	"net/http"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		xff    string
		xri    string
		trust  bool
		want   string
	}{
		{name: "host and port", remote: "192.168.1.1:12345", want: "192.168.1.1"},
		{name: "ipv6 host", remote: "[::1]:12345", want: "::1"},
		{name: "bare address", remote: "192.168.1.1", want: "192.168.1.1"},
		{name: "headers ignored untrusted", remote: "10.0.0.1:1234", xff: "1.2.3.4", xri: "5.6.7.8", want: "10.0.0.1"},
		{name: "forwarded first hop", remote: "10.0.0.3:1234", xff: "1.2.3.4, 10.0.0.1", trust: true, want: "1.2.3.4"},
		{name: "forwarded wins over real ip", remote: "10.0.0.1:1234", xff: "1.2.3.4", xri: "5.6.7.8", trust: true, want: "1.2.3.4"},
		{name: "real ip", remote: "10.0.0.1:1234", xri: " 5.6.7.8 ", trust: true, want: "5.6.7.8"},
		{name: "bad forwarded falls to real ip", remote: "10.0.0.1:1234", xff: "not-an-ip", xri: "5.6.7.8", trust: true, want: "5.6.7.8"},
		{name: "bad headers fall to remote", remote: "10.0.0.1:1234", xff: "unknown", xri: "also-unknown", trust: true, want: "10.0.0.1"},
		{name: "no headers", remote: "10.0.0.1:1234", trust: true, want: "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &http.Request{RemoteAddr: tt.remote, Header: http.Header{}}
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := ClientIP(r, tt.trust); got != tt.want {
				t.Errorf("ClientIP(%q, trust=%v) = %q, want %q", tt.remote, tt.trust, got, tt.want)
			}
		})
	}
}
