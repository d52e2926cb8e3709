// Package classify derives the client classification used by rule matching:
// country, device class, crawler status, ASN and client IP.
package classify

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"traffic-router/internal/models"
)

// Classification is the per-request client profile
type Classification struct {
	Country string // ISO alpha-2, uppercase; empty when unknown
	Device  models.DeviceClass
	IsBot   bool
	ASN     uint32
	IP      netip.Addr
}

// Config names the platform headers the classifier reads
type Config struct {
	CountryHeader   string // e.g. CF-IPCountry
	ASNHeader       string // optional
	BotSignalHeader string // optional
	ClientIPHeader  string // optional; RemoteAddr is used when absent
}

// GeoLookup resolves an IP when the platform headers are missing
type GeoLookup interface {
	Country(ip netip.Addr) string
	ASN(ip netip.Addr) uint32
}

// Classifier classifies inbound requests
type Classifier struct {
	cfg Config
	geo GeoLookup
}

// New creates a classifier. geo may be nil.
func New(cfg Config, geo GeoLookup) *Classifier {
	return &Classifier{cfg: cfg, geo: geo}
}

// Classify profiles r under the current flags
func (c *Classifier) Classify(r *http.Request, flags models.FlagsConfig) Classification {
	cl := Classification{
		IP:     c.ClientIP(r),
		Device: ClassifyDevice(r.Header),
	}
	cl.Country = c.country(r, cl.IP)

	ua := r.Header.Get("User-Agent")
	switch {
	case MatchesBotSignature(ua, flags):
		cl.IsBot = true
	case c.cfg.BotSignalHeader != "" && truthy(r.Header.Get(c.cfg.BotSignalHeader)):
		cl.IsBot = true
	}

	if flags.StrictBots {
		cl.ASN = c.asn(r, cl.IP)
		if _, known := KnownBotASNs[cl.ASN]; known {
			cl.IsBot = true
		}
	}
	return cl
}

// country reads the platform header; unknown placeholders fall back to GeoIP
func (c *Classifier) country(r *http.Request, ip netip.Addr) string {
	var country string
	if c.cfg.CountryHeader != "" {
		country = strings.ToUpper(strings.TrimSpace(r.Header.Get(c.cfg.CountryHeader)))
	}
	switch country {
	case "", "XX", "T1":
		if c.geo != nil && ip.IsValid() {
			return c.geo.Country(ip)
		}
		return ""
	}
	return country
}

func (c *Classifier) asn(r *http.Request, ip netip.Addr) uint32 {
	if c.cfg.ASNHeader != "" {
		if n := ParseASN(r.Header.Get(c.cfg.ASNHeader)); n != 0 {
			return n
		}
	}
	if c.geo != nil && ip.IsValid() {
		return c.geo.ASN(ip)
	}
	return 0
}

// ClientIP returns the first address of the client IP header, else the RemoteAddr host
func (c *Classifier) ClientIP(r *http.Request) netip.Addr {
	if c.cfg.ClientIPHeader != "" {
		if v := r.Header.Get(c.cfg.ClientIPHeader); v != "" {
			first, _, _ := strings.Cut(v, ",")
			if ip, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
				return ip.Unmap()
			}
		}
	}
	return RemoteIP(r)
}

// RemoteIP parses the host part of r.RemoteAddr
func RemoteIP(r *http.Request) netip.Addr {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}
	}
	return ip.Unmap()
}
