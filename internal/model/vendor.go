package model

// EnhanceOutcome records what happened to a vendor during detail
// enhancement, so callers can distinguish "already complete" from
// "detail fetch failed" without log-scraping.
type EnhanceOutcome string

const (
	// EnhanceOutcomeEnhanced means a detail fetch succeeded and was merged.
	EnhanceOutcomeEnhanced EnhanceOutcome = "enhanced"
	// EnhanceOutcomeSkipped means the vendor already had contact info or
	// sat below the enhancement cap.
	EnhanceOutcomeSkipped EnhanceOutcome = "skipped"
	// EnhanceOutcomeFailed means the detail fetch errored; the vendor is
	// passed through unmodified.
	EnhanceOutcomeFailed EnhanceOutcome = "failed"
)

// Vendor is a contractor candidate returned by a places search, optionally
// augmented with ranking distance and enhanced detail.
type Vendor struct {
	PlaceID        string   `json:"place_id"`
	Name           string   `json:"name"`
	Address        string   `json:"address"`
	Phone          string   `json:"phone,omitempty"`
	Website        string   `json:"website,omitempty"`
	Rating         float64  `json:"rating,omitempty"`
	RatingCount    int      `json:"rating_count,omitempty"`
	PriceLevel     int      `json:"price_level,omitempty"`
	Types          []string `json:"types,omitempty"`
	BusinessStatus string   `json:"business_status,omitempty"`
	Latitude       float64  `json:"latitude"`
	Longitude      float64  `json:"longitude"`

	// DistanceMiles is the haversine distance from the property, rounded
	// to one decimal place by the ranker.
	DistanceMiles float64 `json:"distance_miles"`

	// Category and SearchTerm record which catalog entry and which of its
	// terms produced this candidate.
	Category   string `json:"category"`
	SearchTerm string `json:"search_term"`

	MapsURL      string        `json:"google_maps_url,omitempty"`
	OpeningHours *OpeningHours `json:"opening_hours,omitempty"`
	Reviews      []Review      `json:"reviews,omitempty"`
	Photos       []string      `json:"photos,omitempty"`

	Enhanced bool           `json:"enhanced"`
	Outcome  EnhanceOutcome `json:"enhance_outcome,omitempty"`
}

// OpeningHours holds the subset of place opening data surfaced to callers.
type OpeningHours struct {
	OpenNow     *bool    `json:"open_now,omitempty"`
	WeekdayText []string `json:"weekday_text,omitempty"`
}

// Review is a single customer review attached during enhancement.
type Review struct {
	Author       string  `json:"author_name"`
	Rating       float64 `json:"rating"`
	Text         string  `json:"text"`
	Time         int64   `json:"time"`
	RelativeTime string  `json:"relative_time_description"`
}

// VendorSearchResult is the aggregate output of a vendor search for one
// property.
type VendorSearchResult struct {
	Address string `json:"address"`

	// ContractorsNeeded is false when the violation snapshot triggered no
	// categories; Categories and Vendors are then empty.
	ContractorsNeeded bool `json:"contractors_needed"`

	Categories   []string            `json:"categories"`
	Vendors      map[string][]Vendor `json:"vendors"`
	TotalVendors int                 `json:"total_vendors"`
}
