package classify

import (
	"strconv"
	"strings"

	"traffic-router/internal/models"
)

// DefaultBotSignatures are matched case-insensitively against the user agent
// in addition to the flag-configured Google and Yandex lists.
var DefaultBotSignatures = []string{
	"googlebot", "adsbot-google", "mediapartners-google", "google-inspectiontool",
	"yandexbot", "yandexmobilebot", "yandeximages",
	"bingbot", "bingpreview", "msnbot", "duckduckbot", "baiduspider", "slurp",
	"applebot", "petalbot", "sogou", "exabot", "mj12bot", "ahrefsbot", "semrushbot",
	"dotbot", "facebookexternalhit", "twitterbot", "linkedinbot", "telegrambot",
	"whatsapp", "headlesschrome", "phantomjs", "python-requests", "curl/", "wget/",
	"go-http-client", "bot/", "crawler", "spider",
}

// KnownBotASNs are networks whose traffic is treated as automated when strictBots is on
var KnownBotASNs = map[uint32]string{
	15169:  "Google",
	396982: "Google Cloud",
	13238:  "Yandex",
	208722: "Yandex Cloud",
	8075:   "Microsoft",
	16509:  "Amazon",
	14618:  "Amazon",
	14061:  "DigitalOcean",
	24940:  "Hetzner",
	16276:  "OVH",
	63949:  "Akamai Linode",
	32934:  "Facebook",
}

// MatchesBotSignature reports whether ua contains a default or flag-configured signature
func MatchesBotSignature(ua string, flags models.FlagsConfig) bool {
	ua = strings.ToLower(ua)
	if ua == "" {
		return false
	}
	if containsAny(ua, DefaultBotSignatures) {
		return true
	}
	for _, lists := range [][]string{flags.GoogleBots, flags.YandexBots} {
		for _, sig := range lists {
			if sig = strings.ToLower(strings.TrimSpace(sig)); sig != "" && strings.Contains(ua, sig) {
				return true
			}
		}
	}
	return false
}

// truthy interprets a platform bot signal header
func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on", "bot":
		return true
	}
	return false
}

// ParseASN accepts "13238" or "AS13238"
func ParseASN(v string) uint32 {
	v = strings.TrimSpace(v)
	if len(v) > 2 && strings.EqualFold(v[:2], "as") {
		v = v[2:]
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0
	}
	return uint32(n)
}
