package environ

import "testing"

func TestIsMobileUserAgent(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want bool
	}{
		{"android", "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36", true},
		{"iphone", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)", true},
		{"ipad", "Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X)", true},
		{"mobile_token", "Mozilla/5.0 (Mobile; rv:109.0) Gecko/109.0", true},
		{"desktop_chrome", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36", false},
		{"desktop_mac", "Mozilla/5.0 (Macintosh; Intel Mac OS X 13_0)", false},
		{"empty", "", false},
		{"case_insensitive", "some MOBI browser", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsMobileUserAgent(tt.ua); got != tt.want {
				t.Errorf("IsMobileUserAgent(%q) = %v, want %v", tt.ua, got, tt.want)
			}
		})
	}
}

func TestProbeSynthesizesUserAgent(t *testing.T) {
	c := Probe("", "dev")
	if c.UserAgent == "" {
		t.Fatal("expected synthetic user agent")
	}
	if c.Mobile {
		t.Error("synthetic agent must not classify as mobile")
	}
	if c.Platform == "" {
		t.Error("expected platform descriptor")
	}
	if c.Locale == "" {
		t.Error("expected locale tag (possibly \"und\")")
	}
}

func TestProbeKeepsSuppliedUserAgent(t *testing.T) {
	ua := "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)"
	c := Probe(ua, "dev")
	if c.UserAgent != ua {
		t.Errorf("UserAgent = %q, want %q", c.UserAgent, ua)
	}
	if !c.Mobile {
		t.Error("iPhone agent should classify as mobile")
	}
}
