package inat

import (
	"time"

	"github.com/acormier/vireo/internal/domain"
)

// MapTaxa converts wire taxa to domain records
func MapTaxa(results []Taxon) []*domain.Taxon {
	taxa := make([]*domain.Taxon, 0, len(results))
	for _, r := range results {
		taxa = append(taxa, MapTaxon(r))
	}
	return taxa
}

// MapTaxon converts a single wire taxon. Records always map as partial:
// the API nests related taxa one level deep at most, so full records
// only exist after the catalog resolves the taxonomy closure.
func MapTaxon(r Taxon) *domain.Taxon {
	t := &domain.Taxon{
		ID:                r.ID,
		Name:              r.Name,
		Rank:              r.Rank,
		CommonName:        r.PreferredCommonName,
		AncestorIDs:       r.AncestorIDs,
		IconicTaxonID:     r.IconicTaxonID,
		ObservationsCount: r.ObservationsCount,
		PhotoURL:          photoURL(r.DefaultPhoto),
		Partial:           true,
		UpdatedAt:         time.Now().Unix(),
	}

	for _, child := range r.Children {
		t.ChildIDs = append(t.ChildIDs, child.ID)
	}

	return t
}

// MapObservations converts wire observations to domain records
func MapObservations(results []Observation) []*domain.Observation {
	obs := make([]*domain.Observation, 0, len(results))
	for _, r := range results {
		obs = append(obs, MapObservation(r))
	}
	return obs
}

// MapObservation converts a single wire observation. The nested taxon
// maps along with it so offline listings can show identifications.
func MapObservation(r Observation) *domain.Observation {
	o := &domain.Observation{
		ID:           r.ID,
		CreatedAt:    parseTime(r.CreatedAt),
		UpdatedAt:    parseTime(r.UpdatedAt),
		ObservedOn:   observedTime(r),
		Description:  r.Description,
		PlaceGuess:   r.PlaceGuess,
		QualityGrade: r.QualityGrade,
		PhotoURLs:    observationPhotoURLs(r),
	}

	if r.User != nil {
		o.Username = r.User.Login
	}
	if r.Taxon != nil {
		o.TaxonID = r.Taxon.ID
		o.Taxon = MapTaxon(*r.Taxon)
	}

	return o
}

// photoURL picks the best display size from a photo reference
func photoURL(p *Photo) string {
	if p == nil {
		return ""
	}
	if p.MediumURL != "" {
		return p.MediumURL
	}
	return p.URL
}

// observationPhotoURLs collects photo URLs, preferring the ordered
// observation_photos list over the flat photos fallback.
func observationPhotoURLs(r Observation) []string {
	var urls []string
	for _, op := range r.ObservationPhotos {
		if u := photoURL(op.Photo); u != "" {
			urls = append(urls, u)
		}
	}
	if len(urls) > 0 {
		return urls
	}
	for _, p := range r.Photos {
		if u := photoURL(&p); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

// parseTime parses an RFC3339 timestamp, returning the zero time when
// the field is absent or malformed.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// observedTime resolves the observation moment: the full timestamp when
// the uploader provided one, otherwise the date-only field.
func observedTime(r Observation) time.Time {
	if t := parseTime(r.TimeObservedAt); !t.IsZero() {
		return t
	}
	if r.ObservedOn == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", r.ObservedOn)
	if err != nil {
		return time.Time{}
	}
	return t
}
