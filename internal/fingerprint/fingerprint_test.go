package fingerprint

import "testing"

var chromeAttrs = Attributes{
	UserAgent:             "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
	Language:              "en-US",
	TimezoneOffsetMinutes: -120,
	ScreenWidth:           1920,
	ScreenHeight:          1080,
	HardwareConcurrency:   8,
}

func TestBasicIsDeterministic(t *testing.T) {
	a := Basic(chromeAttrs)
	b := Basic(chromeAttrs)
	if a != b {
		t.Fatalf("identical attributes produced different fingerprints: %q vs %q", a, b)
	}
	if a == "" {
		t.Fatal("fingerprint is empty")
	}
}

func TestBasicChangesWithAttributes(t *testing.T) {
	base := Basic(chromeAttrs)

	changed := chromeAttrs
	changed.ScreenWidth = 1280
	if Basic(changed) == base {
		t.Error("screen size change did not change fingerprint")
	}

	changed = chromeAttrs
	changed.Language = "de-DE"
	if Basic(changed) == base {
		t.Error("language change did not change fingerprint")
	}
}

func TestBasicUnknownCores(t *testing.T) {
	a := chromeAttrs
	a.HardwareConcurrency = 0
	b := a
	if Basic(a) != Basic(b) {
		t.Fatal("zero-core attributes are not deterministic")
	}
	// Zero cores folds to a distinct identity from any positive count.
	b.HardwareConcurrency = 4
	if Basic(a) == Basic(b) {
		t.Error("unknown core count collided with explicit core count")
	}
}

func TestRollingHashIsLowercaseHex(t *testing.T) {
	got := rollingHash("hello world")
	for _, r := range got {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			t.Fatalf("rollingHash produced non-hex output %q", got)
		}
	}
}

func TestBotUserAgent(t *testing.T) {
	cases := []struct {
		ua   string
		want bool
	}{
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36", false},
		{"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) Gecko/20100101 Firefox/121.0", false},
		{"curl/8.4.0", true},
		{"python-requests/2.31.0", true},
		{"Googlebot/2.1 (+http://www.google.com/bot.html)", true},
		{"Mozilla/5.0 HeadlessChrome/119.0", true},
		{"axios/1.6.2", true},
		{"Java/1.8.0_381", true},
		// Both spellings of the automation framework must match.
		{"Mozilla/5.0 selenium/4.16", true},
		{"Mozilla/5.0 selenuim/4.16", true},
		// "javascript" alone must not trip the java token.
		{"Mozilla/5.0 (javascript enabled)", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := BotUserAgent(tc.ua); got != tc.want {
			t.Errorf("BotUserAgent(%q) = %v, want %v", tc.ua, got, tc.want)
		}
	}
}

// stubProber returns fixed probe results.
type stubProber struct {
	canvas Probe
	webgl  Probe
}

func (s stubProber) Canvas() Probe { return s.canvas }
func (s stubProber) WebGL() Probe  { return s.webgl }

func TestAdvancedRecordsProbeValues(t *testing.T) {
	ext := Advanced(chromeAttrs, stubProber{
		canvas: Available("data:image/png;base64,abc"),
		webgl:  Available("ANGLE (NVIDIA GeForce)"),
	})

	if ext.Basic != Basic(chromeAttrs) {
		t.Error("extended fingerprint does not embed the basic fingerprint")
	}
	if ext.Canvas != "data:image/png;base64,abc" {
		t.Errorf("canvas = %q, want probed value", ext.Canvas)
	}
	if ext.WebGL != "ANGLE (NVIDIA GeForce)" {
		t.Errorf("webgl = %q, want probed value", ext.WebGL)
	}
	if ext.HeadlessCanvas() || ext.MissingWebGL() {
		t.Error("healthy probes flagged as headless")
	}
}

func TestAdvancedRecordsSentinels(t *testing.T) {
	ext := Advanced(chromeAttrs, stubProber{
		canvas: Errored(),
		webgl:  Unavailable(),
	})

	if ext.Canvas != SentinelHeadless {
		t.Errorf("canvas = %q, want %q", ext.Canvas, SentinelHeadless)
	}
	if ext.WebGL != SentinelUnavailable {
		t.Errorf("webgl = %q, want %q", ext.WebGL, SentinelUnavailable)
	}
	if !ext.HeadlessCanvas() {
		t.Error("HeadlessCanvas() = false after errored canvas probe")
	}
	if !ext.MissingWebGL() {
		t.Error("MissingWebGL() = false after unavailable WebGL probe")
	}
}
