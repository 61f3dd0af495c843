package stealth

import (
	"math/rand"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// fingerprint is the per-session identity a page presents: UA, viewport,
// locale and timezone are randomized together so they stay coherent.
type fingerprint struct {
	userAgent string
	width     int
	height    int
	locale    string
	timezone  string
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
}

var viewports = []struct{ w, h int }{
	{1920, 1080},
	{1536, 864},
	{1440, 900},
	{1366, 768},
}

var locales = []struct{ locale, tz string }{
	{"en-US,en;q=0.9", "America/New_York"},
	{"en-US,en;q=0.9", "America/Chicago"},
	{"en-US,en;q=0.8", "America/Los_Angeles"},
	{"en-US,en;q=0.9", "America/Denver"},
}

func randomFingerprint(r *rand.Rand) fingerprint {
	vp := viewports[r.Intn(len(viewports))]
	lc := locales[r.Intn(len(locales))]
	return fingerprint{
		userAgent: userAgents[r.Intn(len(userAgents))],
		width:     vp.w,
		height:    vp.h,
		locale:    lc.locale,
		timezone:  lc.tz,
	}
}

func applyFingerprint(page *rod.Page, fp fingerprint) error {
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      fp.userAgent,
		AcceptLanguage: fp.locale,
	}); err != nil {
		return err
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             fp.width,
		Height:            fp.height,
		DeviceScaleFactor: 1,
		Mobile:            false,
	}); err != nil {
		return err
	}
	return proto.EmulationSetTimezoneOverride{TimezoneID: fp.timezone}.Call(page)
}

// humanize performs a few mouse moves and a scroll so the session produces
// the input events a real visitor would.
func humanize(page *rod.Page, r *rand.Rand) {
	for i := 0; i < 2+r.Intn(2); i++ {
		x := float64(100 + r.Intn(800))
		y := float64(100 + r.Intn(500))
		_ = page.Mouse.MoveTo(proto.Point{X: x, Y: y})
	}
	_ = page.Mouse.Scroll(0, float64(200+r.Intn(400)), 4)
}
