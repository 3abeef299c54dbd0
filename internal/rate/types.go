package rate

// Window represents a provider rate-limit bucket.
type Window int

const (
	Minute Window = iota
	Day
)

func (w Window) String() string {
	switch w {
	case Minute:
		return "minute"
	case Day:
		return "day"
	default:
		return "unknown"
	}
}

// Headers names the response headers that report remaining budget.
type Headers struct {
	RemainingMinute string
	RemainingDay    string
	RetryAfter      string
}

// StandardHeaders returns the header names most cloud APIs use.
func StandardHeaders() Headers {
	return Headers{
		RemainingMinute: "X-RateLimit-Remaining-minute",
		RemainingDay:    "X-RateLimit-Remaining-day",
		RetryAfter:      "Retry-After",
	}
}

// Declaration defines a provider's request budget.
type Declaration struct {
	provider string
	limits   map[Window]int
	headers  Headers
}

// Provider creates a new declaration for a provider.
func Provider(name string) Declaration {
	return Declaration{provider: name}
}

func (d Declaration) ProviderName() string {
	return d.provider
}

// MaxRequestsPer returns a copy of d with the limit for window set.
func (d Declaration) MaxRequestsPer(window Window, limit int) Declaration {
	limits := make(map[Window]int, len(d.limits)+1)
	for w, l := range d.limits {
		limits[w] = l
	}
	limits[window] = limit
	d.limits = limits
	return d
}

func (d Declaration) ReadHeaders(headers Headers) Declaration {
	d.headers = headers
	return d
}

func (d Declaration) Limits() map[Window]int {
	return d.limits
}

func (d Declaration) Headers() Headers {
	return d.headers
}

func (d Declaration) HasLimits() bool {
	return len(d.limits) > 0
}
