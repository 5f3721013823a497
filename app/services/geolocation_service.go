package services

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// VisitLocation is the resolved geolocation of a visitor's IP address
type VisitLocation struct {
	CountryCode string
	CountryName string
	CityName    string
	Latitude    float64
	Longitude   float64
}

// GeolocationService resolves an IP address to a location. Lookups run on the
// background dispatcher, never on the redirect path.
type GeolocationService interface {
	Locate(ipAddress string) (*VisitLocation, error)
	Close() error
}

// MaxMindGeolocationService implements GeolocationService against a local
// GeoLite2/GeoIP2 City database file
type MaxMindGeolocationService struct {
	reader *geoip2.Reader
}

// NewMaxMindGeolocationService opens the mmdb file at path
func NewMaxMindGeolocationService(path string) (*MaxMindGeolocationService, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open geolocation database %s: %w", path, err)
	}
	return &MaxMindGeolocationService{reader: reader}, nil
}

// Locate resolves the location for ipAddress. Private and unparsable
// addresses resolve to an error, not an empty location.
func (s *MaxMindGeolocationService) Locate(ipAddress string) (*VisitLocation, error) {
	ip := net.ParseIP(ipAddress)
	if ip == nil {
		return nil, fmt.Errorf("invalid IP address: %s", ipAddress)
	}
	if ip.IsPrivate() || ip.IsLoopback() || ip.IsUnspecified() {
		return nil, fmt.Errorf("IP address %s is not globally routable", ipAddress)
	}

	record, err := s.reader.City(ip)
	if err != nil {
		return nil, fmt.Errorf("geolocation lookup failed for %s: %w", ipAddress, err)
	}

	return &VisitLocation{
		CountryCode: record.Country.IsoCode,
		CountryName: record.Country.Names["en"],
		CityName:    record.City.Names["en"],
		Latitude:    record.Location.Latitude,
		Longitude:   record.Location.Longitude,
	}, nil
}

func (s *MaxMindGeolocationService) Close() error {
	return s.reader.Close()
}

// MockGeolocationService returns a fixed location; used in tests
type MockGeolocationService struct {
	Location *VisitLocation
	Err      error
	Lookups  []string
}

func NewMockGeolocationService(location *VisitLocation, err error) *MockGeolocationService {
	return &MockGeolocationService{Location: location, Err: err}
}

func (s *MockGeolocationService) Locate(ipAddress string) (*VisitLocation, error) {
	s.Lookups = append(s.Lookups, ipAddress)
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Location, nil
}

func (s *MockGeolocationService) Close() error { return nil }
