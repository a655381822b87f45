package download

import "testing"

/**
 * TestMatchNoProxy verifies the no_proxy bypass patterns
 * @description
 * - exact host match
 * - leading-dot suffix match
 * - bare domain matches its subdomains
 * - "*" matches everything
 */
func TestMatchNoProxy(t *testing.T) {
	cases := []struct {
		host    string
		noProxy string
		want    bool
	}{
		{"release.ccs.dev", "", false},
		{"release.ccs.dev", "release.ccs.dev", true},
		{"release.ccs.dev", "other.dev", false},
		{"release.ccs.dev", ".ccs.dev", true},
		{"ccs.dev", ".ccs.dev", true},
		{"release.ccs.dev", "ccs.dev", true},
		{"notccs.dev", "ccs.dev", false},
		{"anything.example", "*", true},
		{"release.ccs.dev", "foo.com, .ccs.dev", true},
		{"release.ccs.dev", "release.ccs.dev:443", true},
	}
	for _, c := range cases {
		if got := matchNoProxy(c.host, c.noProxy); got != c.want {
			t.Errorf("matchNoProxy(%q, %q): expected %v, got %v", c.host, c.noProxy, c.want, got)
		}
	}
}

/**
 * TestBackoffDelay verifies per-category backoff progressions
 */
func TestBackoffDelay(t *testing.T) {
	if d := backoffDelay(CategoryReset, 1); d.Seconds() != 2 {
		t.Errorf("reset n=1: expected 2s, got %v", d)
	}
	if d := backoffDelay(CategoryTimeout, 3); d.Seconds() != 8 {
		t.Errorf("timeout n=3: expected 8s, got %v", d)
	}
	if d := backoffDelay(CategoryUnknown, 1); d.Seconds() != 1 {
		t.Errorf("unknown n=1: expected 1s, got %v", d)
	}
	if d := backoffDelay(CategoryUnknown, 3); d.Seconds() != 4 {
		t.Errorf("unknown n=3: expected 4s, got %v", d)
	}
}
