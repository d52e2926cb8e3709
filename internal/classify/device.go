package classify

import (
	"net/http"
	"strings"

	"traffic-router/internal/models"
)

var (
	tabletTokens   = []string{"ipad", "tablet", "kindle", "silk/", "playbook", "nexus 7", "nexus 9", "sm-t"}
	desktopMarkers = []string{"windows nt", "macintosh", "x11;", "cros ", "linux x86_64"}
	mobileTokens   = []string{
		"iphone", "ipod", "android", "blackberry", "bb10", "iemobile", "windows phone",
		"opera mini", "opera mobi", "webos", "symbian", "bada", "kaios", "nokia", "palm",
		"fennec", "midp", "wap",
	}
)

// ClassifyDevice derives the device class. A Sec-CH-UA-Mobile hint of ?1 or ?0
// is authoritative; otherwise tablet and desktop markers in the user agent
// take precedence over mobile ones. The default is desktop.
func ClassifyDevice(h http.Header) models.DeviceClass {
	switch strings.TrimSpace(h.Get("Sec-CH-UA-Mobile")) {
	case "?1":
		return models.DeviceMobile
	case "?0":
		return models.DeviceDesktop
	}
	return classifyUserAgent(h.Get("User-Agent"))
}

func classifyUserAgent(ua string) models.DeviceClass {
	ua = strings.ToLower(ua)
	if ua == "" {
		return models.DeviceDesktop
	}

	if containsAny(ua, tabletTokens) || (strings.Contains(ua, "android") && !strings.Contains(ua, "mobi")) {
		return models.DeviceTablet
	}
	if containsAny(ua, desktopMarkers) {
		return models.DeviceDesktop
	}
	if strings.Contains(ua, "mobi") {
		return models.DeviceMobile
	}
	if containsAny(ua, mobileTokens) {
		return models.DeviceMobile
	}
	return models.DeviceDesktop
}

func containsAny(s string, tokens []string) bool {
	for _, t := range tokens {
		if t != "" && strings.Contains(s, t) {
			return true
		}
	}
	return false
}
