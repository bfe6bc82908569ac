package domain

// ServerConfig is a configured upstream nameserver: { zones: set of Domain;
// address: Address }. An empty Zones set marks the server as a default.
type ServerConfig struct {
	Zones   []Name
	Address Address
}

// IsDefault reports whether this server has no zones, making it a
// fallback candidate.
func (s ServerConfig) IsDefault() bool {
	return len(s.Zones) == 0
}

// Matches reports whether any of s's zones is a suffix of the query labels.
func (s ServerConfig) Matches(query Name) bool {
	for _, zone := range s.Zones {
		if query.HasSuffix(zone) {
			return true
		}
	}
	return false
}

// Configuration is the immutable set of servers and search domains a
// forwarder is installed with. Invariant: no two entries in Servers share
// the same Address.
type Configuration struct {
	Servers []ServerConfig
	Search  []string
}
