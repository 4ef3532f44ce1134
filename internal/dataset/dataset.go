// Package dataset defines the catalogue record model shared by ingestion,
// storage and search.
package dataset

import (
	"fmt"
	"strings"
	"time"

	dsherrors "github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/errors"
)

// AccessLevel controls who may see a dataset.
type AccessLevel string

const (
	AccessPublic     AccessLevel = "public"
	AccessRestricted AccessLevel = "restricted"
	AccessAdminOnly  AccessLevel = "admin_only"
)

// Role is an ISO 19115 CI_RoleCode value.
type Role string

const (
	RolePointOfContact Role = "pointOfContact"
	RoleAuthor         Role = "author"
	RoleCustodian      Role = "custodian"
	RolePublisher      Role = "publisher"
	RoleOriginator     Role = "originator"
	RoleOther          Role = "other"
)

// BoundingBox is a WGS84 geographic extent.
type BoundingBox struct {
	West  float64 `json:"west"`
	East  float64 `json:"east"`
	South float64 `json:"south"`
	North float64 `json:"north"`
}

// Validate checks coordinate ranges. East may be below West for boxes
// crossing the antimeridian.
func (b BoundingBox) Validate() error {
	if b.West < -180 || b.West > 180 || b.East < -180 || b.East > 180 {
		return fmt.Errorf("longitude out of range: west=%g east=%g", b.West, b.East)
	}
	if b.South < -90 || b.South > 90 || b.North < -90 || b.North > 90 {
		return fmt.Errorf("latitude out of range: south=%g north=%g", b.South, b.North)
	}
	if b.North < b.South {
		return fmt.Errorf("north (%g) is below south (%g)", b.North, b.South)
	}
	return nil
}

// TemporalExtent is the period the data covers. Either end may be open.
type TemporalExtent struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// ResponsibleParty is a person or organisation tied to the dataset.
type ResponsibleParty struct {
	Name         string `json:"name,omitempty"`
	Organisation string `json:"organisation,omitempty"`
	Role         Role   `json:"role"`
	Email        string `json:"email,omitempty"`
	ORCID        string `json:"orcid,omitempty"`
}

// Distribution is an online resource through which data can be obtained.
type Distribution struct {
	URL         string `json:"url"`
	Name        string `json:"name,omitempty"`
	Format      string `json:"format,omitempty"`
	AccessType  string `json:"access_type,omitempty"`
	Description string `json:"description,omitempty"`
}

// RelatedDocument links to another catalogue record.
type RelatedDocument struct {
	Identifier   string `json:"identifier"`
	Relationship string `json:"relationship,omitempty"`
	Title        string `json:"title,omitempty"`
	URL          string `json:"url,omitempty"`
}

// Dataset is one catalogue metadata record.
type Dataset struct {
	Identifier         string             `json:"identifier"`
	Title              string             `json:"title"`
	Abstract           string             `json:"abstract,omitempty"`
	Lineage            string             `json:"lineage,omitempty"`
	Keywords           []string           `json:"keywords,omitempty"`
	TopicCategories    []string           `json:"topic_categories,omitempty"`
	BoundingBox        *BoundingBox       `json:"bounding_box,omitempty"`
	TemporalExtent     *TemporalExtent    `json:"temporal_extent,omitempty"`
	ResponsibleParties []ResponsibleParty `json:"responsible_parties,omitempty"`
	Distributions      []Distribution     `json:"distributions,omitempty"`
	RelatedDocuments   []RelatedDocument  `json:"related_documents,omitempty"`
	AccessLevel        AccessLevel        `json:"access_level"`
	SourceFormat       string             `json:"source_format,omitempty"`
	RawDocument        string             `json:"-"`
	IngestedAt         time.Time          `json:"ingested_at"`
}

// Validate reports whether the record can be stored. Failures are
// validation errors and therefore never retried.
func (d *Dataset) Validate() error {
	if d == nil {
		return dsherrors.ValidationError("dataset is nil", nil)
	}
	if strings.TrimSpace(d.Identifier) == "" {
		return dsherrors.ValidationError("dataset identifier is required", nil)
	}
	if strings.TrimSpace(d.Title) == "" {
		return dsherrors.ValidationError("dataset title is required", nil).
			WithDetail("id", d.Identifier)
	}
	if d.BoundingBox != nil {
		if err := d.BoundingBox.Validate(); err != nil {
			return dsherrors.ValidationError("invalid bounding box", err).
				WithDetail("id", d.Identifier)
		}
	}
	if t := d.TemporalExtent; t != nil && t.Start != nil && t.End != nil && t.End.Before(*t.Start) {
		return dsherrors.ValidationError("temporal extent ends before it starts", nil).
			WithDetail("id", d.Identifier)
	}
	switch d.AccessLevel {
	case "", AccessPublic, AccessRestricted, AccessAdminOnly:
	default:
		return dsherrors.ValidationError(fmt.Sprintf("unknown access level %q", d.AccessLevel), nil).
			WithDetail("id", d.Identifier)
	}
	return nil
}

// SearchText is the text embedded and keyword indexed for the record.
func (d *Dataset) SearchText() string {
	parts := make([]string, 0, 4)
	if d.Title != "" {
		parts = append(parts, d.Title)
	}
	if d.Abstract != "" {
		parts = append(parts, d.Abstract)
	}
	if len(d.Keywords) > 0 {
		parts = append(parts, strings.Join(d.Keywords, ", "))
	}
	if d.Lineage != "" {
		parts = append(parts, d.Lineage)
	}
	return strings.Join(parts, "\n\n")
}

// Organisation returns the first organisation named by a responsible party.
func (d *Dataset) Organisation() string {
	for _, p := range d.ResponsibleParties {
		if p.Organisation != "" {
			return p.Organisation
		}
	}
	return ""
}

// Normalize trims whitespace, drops empty and duplicate keywords, and
// defaults the access level.
func (d *Dataset) Normalize() {
	d.Identifier = strings.TrimSpace(d.Identifier)
	d.Title = strings.TrimSpace(d.Title)
	d.Abstract = strings.TrimSpace(d.Abstract)
	d.Lineage = strings.TrimSpace(d.Lineage)
	d.Keywords = dedupe(d.Keywords)
	d.TopicCategories = dedupe(d.TopicCategories)
	if d.AccessLevel == "" {
		d.AccessLevel = AccessPublic
	}
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
