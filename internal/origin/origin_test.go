package origin

import "testing"

func TestNormalizeHeader(t *testing.T) {
	tests := []struct {
		in       string
		wantNorm string
		wantHost string
		wantOK   bool
	}{
		{"https://example.com", "https://example.com", "example.com", true},
		{"https://Example.COM", "https://example.com", "example.com", true},
		{"  https://example.com  ", "https://example.com", "example.com", true},
		{"https://example.com:443", "https://example.com", "example.com", true},
		{"http://example.com:80", "http://example.com", "example.com", true},
		{"http://example.com:8080", "http://example.com:8080", "example.com:8080", true},
		{"https://[::1]:8443", "https://[::1]:8443", "[::1]:8443", true},
		{"https://[::1]:443", "https://[::1]", "[::1]", true},
		{"null", "null", "", true},
		{"", "", "", false},
		{"example.com", "", "", false},
		{"ftp://example.com", "", "", false},
		{"https://user@example.com", "", "", false},
		{"https://example.com/path", "", "", false},
		{"https://example.com?q=1", "", "", false},
		{"https://example.com:0", "", "", false},
		{"https://example.com:99999", "", "", false},
		{"https://[::1", "", "", false},
	}
	for _, tt := range tests {
		norm, host, ok := NormalizeHeader(tt.in)
		if norm != tt.wantNorm || host != tt.wantHost || ok != tt.wantOK {
			t.Errorf("NormalizeHeader(%q)=(%q,%q,%v), want (%q,%q,%v)",
				tt.in, norm, host, ok, tt.wantNorm, tt.wantHost, tt.wantOK)
		}
	}
}

func TestIsAllowedExplicitList(t *testing.T) {
	allowed := []string{"https://app.example.com", "http://localhost:3000"}

	if !IsAllowed(allowed, "https://app.example.com", "relay.internal") {
		t.Fatal("listed origin rejected")
	}
	if !IsAllowed(allowed, "http://localhost:3000", "relay.internal") {
		t.Fatal("listed localhost origin rejected")
	}
	if IsAllowed(allowed, "https://evil.example.com", "relay.internal") {
		t.Fatal("unlisted origin accepted")
	}
	if IsAllowed(allowed, "null", "relay.internal") {
		t.Fatal("null origin accepted against explicit list")
	}
	if !IsAllowed([]string{"*"}, "https://anything.test", "relay.internal") {
		t.Fatal("wildcard rejected an origin")
	}
}

func TestIsAllowedSameHostDefault(t *testing.T) {
	if !IsAllowed(nil, "http://relay.example.com:8080", "relay.example.com:8080") {
		t.Fatal("same host:port rejected")
	}
	if !IsAllowed(nil, "https://relay.example.com", "relay.example.com:443") {
		t.Fatal("default port not treated as equivalent")
	}
	if IsAllowed(nil, "https://other.example.com", "relay.example.com") {
		t.Fatal("cross-host origin accepted")
	}
	if IsAllowed(nil, "null", "relay.example.com") {
		t.Fatal("null origin accepted under same-host policy")
	}
	if IsAllowed(nil, "", "relay.example.com") {
		t.Fatal("empty origin accepted")
	}
}
