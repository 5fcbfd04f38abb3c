package aircraftdb

// Resolver looks up the aircraft type designator for an ICAO address.
// Implementations swallow their own errors and return "" for unknown aircraft.
type Resolver interface {
	Resolve(icao string) string
}

// ResolverFunc adapts a function to the Resolver interface
type ResolverFunc func(icao string) string

func (f ResolverFunc) Resolve(icao string) string {
	return f(icao)
}

// Chain asks each resolver in turn and returns the first non-empty answer
type Chain []Resolver

func (c Chain) Resolve(icao string) string {
	for _, r := range c {
		if r == nil {
			continue
		}
		if t := r.Resolve(icao); t != "" {
			return t
		}
	}
	return ""
}
