package configcache

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/zeebo/xxh3"
	"traffic-router/internal/models"
	"traffic-router/internal/routing"
)

// Bundle is an immutable snapshot of the stored configuration.
// Readers must not modify it; a reload always produces a new Bundle.
type Bundle struct {
	Routes    []models.RouteRule `json:"routes"`
	Flags     models.FlagsConfig `json:"flags"`
	Metadata  models.Metadata    `json:"metadata"`
	Etag      string             `json:"etag"`
	LoadedAt  time.Time          `json:"loadedAt"`
	ExpiresAt time.Time          `json:"expiresAt"`

	Rules        *routing.RuleSet      `json:"-"`
	InvalidRules []routing.InvalidRule `json:"invalidRules,omitempty"`
}

// etagDocument is the canonical input of the etag. encoding/json writes
// struct fields in declaration order and map keys sorted.
type etagDocument struct {
	Routes  []models.RouteRule `json:"routes"`
	Flags   models.FlagsConfig `json:"flags"`
	Version int64              `json:"version"`
}

// ComputeEtag returns the quoted strong etag of routes, flags and version.
// Load time does not participate.
func ComputeEtag(routes []models.RouteRule, flags models.FlagsConfig, version int64) (string, error) {
	if routes == nil {
		routes = []models.RouteRule{}
	}
	flags.Normalize()

	data, err := json.Marshal(etagDocument{Routes: routes, Flags: flags, Version: version})
	if err != nil {
		return "", err
	}
	return `"` + ContentHash(data) + `"`, nil
}

// ContentHash is the hex xxh3-128 digest of data
func ContentHash(data []byte) string {
	h := xxh3.Hash128(data)
	var b [16]byte
	binary.LittleEndian.PutUint64(b[:8], h.Lo)
	binary.LittleEndian.PutUint64(b[8:], h.Hi)
	return hex.EncodeToString(b[:])
}

// MatchesEtag compares an If-Match value against etag. The value may list
// several etags separated by commas; any one matching is enough. Weak validators
// and unquoted values are accepted; "*" matches anything.
func MatchesEtag(ifMatch, etag string) bool {
	want := unquote(etag)
	for _, candidate := range strings.Split(ifMatch, ",") {
		candidate = strings.TrimSpace(candidate)
		switch {
		case candidate == "*":
			return true
		case candidate == "":
			continue
		case unquote(candidate) == want:
			return true
		}
	}
	return false
}

func unquote(tag string) string {
	if len(tag) > 2 && tag[:2] == "W/" {
		tag = tag[2:]
	}
	if len(tag) >= 2 && tag[0] == '"' && tag[len(tag)-1] == '"' {
		tag = tag[1 : len(tag)-1]
	}
	return tag
}
