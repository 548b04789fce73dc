package domain

import (
	"fmt"
	"time"
)

// RootTaxonID is the synthetic root of the taxonomic tree ("Life").
// It is excluded from closure resolution because every taxon descends
// from it and expanding it would pull the entire tree.
const RootTaxonID = 48460

// EntityKind distinguishes record types in the local mirror
type EntityKind int

const (
	KindTaxon EntityKind = iota
	KindObservation
)

// String returns the kind's table-friendly name
func (k EntityKind) String() string {
	switch k {
	case KindTaxon:
		return "taxon"
	case KindObservation:
		return "observation"
	default:
		return "unknown"
	}
}

// Entity is implemented by records that live in the local mirror.
// Partial records carry only enough fields to reference their relations
// (ID lists) without the full nested data.
type Entity interface {
	// EntityID returns the stable remote identifier
	EntityID() int64

	// IsPartial reports whether only a subset of fields is populated
	IsPartial() bool
}

// Taxon represents one node of the taxonomic tree
type Taxon struct {
	ID         int64  // iNaturalist taxon ID
	Name       string // Scientific name
	Rank       string // "species", "genus", "family", ...
	CommonName string // Preferred common name (may be empty)

	// Relational fields. A full (non-partial) taxon also has Ancestors
	// and Children populated with records resolved from these IDs.
	AncestorIDs []int64 // Root-first ancestor chain
	ChildIDs    []int64 // Direct children

	Ancestors []*Taxon // Resolved ancestor records (possibly partial)
	Children  []*Taxon // Resolved child records (possibly partial)

	PhotoURL          string // Default photo (medium size)
	IconicTaxonID     int64  // Coarse group (Aves, Plantae, ...)
	ObservationsCount int    // Global observation count on the remote

	Partial   bool  // True when loaded without full taxonomy
	UpdatedAt int64 // Unix timestamp of last local write
}

func (t *Taxon) EntityID() int64 { return t.ID }
func (t *Taxon) IsPartial() bool { return t.Partial }

// FullName returns the scientific name with the common name appended,
// e.g. "Danaus plexippus (Monarch)".
func (t *Taxon) FullName() string {
	if t.CommonName == "" {
		return t.Name
	}
	return fmt.Sprintf("%s (%s)", t.Name, t.CommonName)
}

// RelatedIDs returns the union of ancestor and child IDs that need
// resolution for this taxon to be considered full. The root taxon and
// the taxon itself are excluded to avoid self-referential expansion.
func (t *Taxon) RelatedIDs() []int64 {
	ids := make([]int64, 0, len(t.AncestorIDs)+len(t.ChildIDs))
	seen := map[int64]bool{RootTaxonID: true, t.ID: true}
	for _, id := range t.AncestorIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, id := range t.ChildIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// Observation represents a single user observation of a taxon
type Observation struct {
	ID           int64     // iNaturalist observation ID
	TaxonID      int64     // Identified taxon (0 if unidentified)
	Taxon        *Taxon    // Resolved taxon record (nil until joined)
	Username     string    // Observer login
	CreatedAt    time.Time // Creation time on the remote
	ObservedOn   time.Time // When the organism was observed
	UpdatedAt    time.Time // Last remote update
	Description  string    // Free-form notes
	PlaceGuess   string    // Human-readable location
	QualityGrade string    // "research", "needs_id", "casual"
	PhotoURLs    []string  // Observation photo URLs

	Partial bool // True when loaded without its taxon record
}

func (o *Observation) EntityID() int64 { return o.ID }
func (o *Observation) IsPartial() bool { return o.Partial }

// TaxonName returns the display name of the identified taxon, or a
// placeholder when the observation has no identification yet.
func (o *Observation) TaxonName() string {
	if o.Taxon != nil {
		return o.Taxon.FullName()
	}
	if o.TaxonID != 0 {
		return fmt.Sprintf("Taxon %d", o.TaxonID)
	}
	return "Unknown"
}

// Page is one page of an observation listing, ordered by creation time
// descending. TotalResults is the full result count known at fetch time,
// not the page length.
type Page struct {
	Number       int            // 1-based page number
	TotalResults int            // Total rows matching the listing
	Observations []*Observation // Page contents, created_at DESC
}

// IsEmpty reports whether the page carries no rows
func (p Page) IsEmpty() bool { return len(p.Observations) == 0 }

// EntityIDs collects the IDs of a slice of entities
func EntityIDs[T Entity](entities []T) []int64 {
	ids := make([]int64, 0, len(entities))
	for _, e := range entities {
		ids = append(ids, e.EntityID())
	}
	return ids
}

// MissingIDs returns the requested IDs not present in found, preserving
// the order of the request.
func MissingIDs[T Entity](requested []int64, found []T) []int64 {
	have := make(map[int64]bool, len(found))
	for _, e := range found {
		have[e.EntityID()] = true
	}
	var missing []int64
	for _, id := range requested {
		if !have[id] {
			missing = append(missing, id)
		}
	}
	return missing
}
