package classify

import (
	"fmt"
	"net"
	"net/netip"
	"strings"
	"sync"

	"github.com/oschwald/maxminddb-golang"
	"github.com/robfig/cron/v3"
	"traffic-router/internal/common/logging"
)

// GeoReader abstracts a GeoIP database. A country database answers Country,
// an ASN database answers ASN; the other lookup returns the zero value.
type GeoReader interface {
	Country(ip netip.Addr) string
	ASN(ip netip.Addr) uint32
	Close() error
}

// OpenFunc opens a GeoIP database file
type OpenFunc func(path string) (GeoReader, error)

type mmdbRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
	AutonomousSystemNumber uint32 `maxminddb:"autonomous_system_number"`
}

type mmdbReader struct {
	db *maxminddb.Reader
}

// OpenMaxMind opens a MaxMind (GeoLite2/GeoIP2) country or ASN database
func OpenMaxMind(path string) (GeoReader, error) {
	db, err := maxminddb.Open(path)
	if err != nil {
		return nil, err
	}
	return &mmdbReader{db: db}, nil
}

func (r *mmdbReader) lookup(ip netip.Addr) (mmdbRecord, bool) {
	var rec mmdbRecord
	if !ip.IsValid() {
		return rec, false
	}
	if err := r.db.Lookup(net.IP(ip.Unmap().AsSlice()), &rec); err != nil {
		return rec, false
	}
	return rec, true
}

func (r *mmdbReader) Country(ip netip.Addr) string {
	rec, ok := r.lookup(ip)
	if !ok {
		return ""
	}
	return strings.ToUpper(rec.Country.ISOCode)
}

func (r *mmdbReader) ASN(ip netip.Addr) uint32 {
	rec, ok := r.lookup(ip)
	if !ok {
		return 0
	}
	return rec.AutonomousSystemNumber
}

func (r *mmdbReader) Close() error { return r.db.Close() }

// GeoConfig configures the GeoIP service
type GeoConfig struct {
	CountryDB      string   // path to the country database, optional
	ASNDB          string   // path to the ASN database, optional
	ReloadSchedule string   // cron expression, default "0 4 * * *"
	Open           OpenFunc // defaults to OpenMaxMind
	Logger         logging.Logger
}

// GeoService provides GeoIP lookups with hot reloading via RWMutex
type GeoService struct {
	mu      sync.RWMutex
	country GeoReader
	asn     GeoReader

	countryPath string
	asnPath     string
	open        OpenFunc
	cron        *cron.Cron
	reloadMu    sync.Mutex
	logger      logging.Logger
}

// NewGeoService creates the service and schedules reloads. Databases are opened by Start.
func NewGeoService(cfg GeoConfig) (*GeoService, error) {
	if cfg.ReloadSchedule == "" {
		cfg.ReloadSchedule = "0 4 * * *"
	}
	if cfg.Open == nil {
		cfg.Open = OpenMaxMind
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.GetGlobalLogger()
	}

	s := &GeoService{
		countryPath: cfg.CountryDB,
		asnPath:     cfg.ASNDB,
		open:        cfg.Open,
		cron:        cron.New(),
		logger:      cfg.Logger.WithFields(logging.Field{Key: "component", Value: "geoip"}),
	}

	if _, err := s.cron.AddFunc(cfg.ReloadSchedule, func() {
		if err := s.Reload(); err != nil {
			s.logger.Error("Scheduled GeoIP reload failed", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid GeoIP reload schedule %q: %w", cfg.ReloadSchedule, err)
	}
	return s, nil
}

// Start loads the configured databases and starts the reload scheduler.
// A database that fails to open is logged and left unloaded.
func (s *GeoService) Start() {
	if err := s.Reload(); err != nil {
		s.logger.Warn("GeoIP databases not loaded", logging.Field{Key: "error", Value: err.Error()})
	}
	s.cron.Start()
}

// Reload reopens both databases and swaps them in. A database that fails to
// open keeps its previous reader.
func (s *GeoService) Reload() error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	var errs []string
	if s.countryPath != "" {
		if r, err := s.open(s.countryPath); err != nil {
			errs = append(errs, fmt.Sprintf("country db %s: %v", s.countryPath, err))
		} else {
			s.swap(&s.country, r)
		}
	}
	if s.asnPath != "" {
		if r, err := s.open(s.asnPath); err != nil {
			errs = append(errs, fmt.Sprintf("asn db %s: %v", s.asnPath, err))
		} else {
			s.swap(&s.asn, r)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("geoip reload: %s", strings.Join(errs, "; "))
	}
	s.logger.Info("GeoIP databases loaded",
		logging.Field{Key: "country_db", Value: s.countryPath},
		logging.Field{Key: "asn_db", Value: s.asnPath},
	)
	return nil
}

func (s *GeoService) swap(slot *GeoReader, r GeoReader) {
	s.mu.Lock()
	old := *slot
	*slot = r
	s.mu.Unlock()
	if old != nil {
		old.Close()
	}
}

// Stop stops the scheduler and closes the readers
func (s *GeoService) Stop() {
	<-s.cron.Stop().Done()
	s.mu.Lock()
	country, asn := s.country, s.asn
	s.country, s.asn = nil, nil
	s.mu.Unlock()
	if country != nil {
		country.Close()
	}
	if asn != nil {
		asn.Close()
	}
}

// Country returns the ISO country code for ip, or "" when unknown
func (s *GeoService) Country(ip netip.Addr) string {
	if s == nil {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.country == nil {
		return ""
	}
	return s.country.Country(ip)
}

// ASN returns the autonomous system number for ip, or 0 when unknown
func (s *GeoService) ASN(ip netip.Addr) uint32 {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.asn == nil {
		return 0
	}
	return s.asn.ASN(ip)
}
