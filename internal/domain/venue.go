package domain

import "fmt"

// Venue identifies a prediction-market venue.
type Venue string

const (
	VenuePolymarket Venue = "polymarket"
	VenuePredictFun Venue = "predict_fun"
	VenueProbable   Venue = "probable"
	VenueKalshi     Venue = "kalshi"
)

// Venues returns every known venue in a stable order.
func Venues() []Venue {
	return []Venue{VenuePolymarket, VenuePredictFun, VenueProbable, VenueKalshi}
}

// ParseVenue converts a configuration string into a Venue.
func ParseVenue(s string) (Venue, error) {
	switch v := Venue(s); v {
	case VenuePolymarket, VenuePredictFun, VenueProbable, VenueKalshi:
		return v, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownVenue, s)
	}
}

// Valid reports whether v is one of the known venues.
func (v Venue) Valid() bool {
	_, err := ParseVenue(string(v))
	return err == nil
}
