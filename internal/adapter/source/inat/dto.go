package inat

// TaxaResponse is the paginated envelope for /taxa endpoints
type TaxaResponse struct {
	TotalResults int     `json:"total_results"`
	Page         int     `json:"page"`
	PerPage      int     `json:"per_page"`
	Results      []Taxon `json:"results"`
}

// ObservationsResponse is the paginated envelope for /observations
type ObservationsResponse struct {
	TotalResults int           `json:"total_results"`
	Page         int           `json:"page"`
	PerPage      int           `json:"per_page"`
	Results      []Observation `json:"results"`
}

// Taxon is the wire form of a taxonomic record. Detail fetches include
// ancestors and children as nested records; list results usually carry
// only ancestor_ids.
type Taxon struct {
	ID                  int64   `json:"id"`
	Name                string  `json:"name"`
	Rank                string  `json:"rank,omitempty"`
	PreferredCommonName string  `json:"preferred_common_name,omitempty"`
	AncestorIDs         []int64 `json:"ancestor_ids,omitempty"`
	ParentID            int64   `json:"parent_id,omitempty"`
	Ancestors           []Taxon `json:"ancestors,omitempty"`
	Children            []Taxon `json:"children,omitempty"`
	IconicTaxonID       int64   `json:"iconic_taxon_id,omitempty"`
	IconicTaxonName     string  `json:"iconic_taxon_name,omitempty"`
	ObservationsCount   int     `json:"observations_count,omitempty"`
	IsActive            bool    `json:"is_active,omitempty"`
	Extinct             bool    `json:"extinct,omitempty"`
	DefaultPhoto        *Photo  `json:"default_photo,omitempty"`
	WikipediaURL        string  `json:"wikipedia_url,omitempty"`
}

// Photo is the wire form of a photo reference
type Photo struct {
	ID          int64  `json:"id"`
	URL         string `json:"url,omitempty"`
	MediumURL   string `json:"medium_url,omitempty"`
	SquareURL   string `json:"square_url,omitempty"`
	Attribution string `json:"attribution,omitempty"`
	LicenseCode string `json:"license_code,omitempty"`
}

// Observation is the wire form of an observation record
type Observation struct {
	ID                int64              `json:"id"`
	CreatedAt         string             `json:"created_at,omitempty"`
	UpdatedAt         string             `json:"updated_at,omitempty"`
	TimeObservedAt    string             `json:"time_observed_at,omitempty"`
	ObservedOn        string             `json:"observed_on,omitempty"`
	Description       string             `json:"description,omitempty"`
	PlaceGuess        string             `json:"place_guess,omitempty"`
	QualityGrade      string             `json:"quality_grade,omitempty"`
	User              *User              `json:"user,omitempty"`
	Taxon             *Taxon             `json:"taxon,omitempty"`
	Photos            []Photo            `json:"photos,omitempty"`
	ObservationPhotos []ObservationPhoto `json:"observation_photos,omitempty"`
}

// ObservationPhoto links an observation to one of its photos
type ObservationPhoto struct {
	ID       int64  `json:"id"`
	Position int    `json:"position,omitempty"`
	Photo    *Photo `json:"photo,omitempty"`
}

// User is the wire form of an account reference
type User struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name,omitempty"`
}
