package parse

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/dataset"
)

// JSONParser parses the CEH catalogue JSON representation (?format=json).
type JSONParser struct{}

// NewJSONParser creates a JSON parser.
func NewJSONParser() *JSONParser {
	return &JSONParser{}
}

// Format implements Parser.
func (p *JSONParser) Format() Format { return FormatJSON }

// cehKeyword accepts both {"value": "..."} objects and bare strings.
type cehKeyword string

func (k *cehKeyword) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*k = cehKeyword(s)
		return nil
	}
	var obj struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*k = cehKeyword(obj.Value)
	return nil
}

// cehNumber accepts JSON numbers and numeric strings.
type cehNumber float64

func (n *cehNumber) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*n = cehNumber(f)
	return nil
}

type cehDocument struct {
	ID                 *string      `json:"id"`
	Title              *string      `json:"title"`
	Description        string       `json:"description"`
	Lineage            string       `json:"lineage"`
	KeywordsOther      []cehKeyword `json:"keywordsOther"`
	KeywordsPlace      []cehKeyword `json:"keywordsPlace"`
	KeywordsProject    []cehKeyword `json:"keywordsProject"`
	KeywordsTheme      []cehKeyword `json:"keywordsTheme"`
	KeywordsInstrument []cehKeyword `json:"keywordsInstrument"`
	TopicCategories    []cehKeyword `json:"topicCategories"`
	BoundingBoxes      []struct {
		West  cehNumber `json:"westBoundLongitude"`
		East  cehNumber `json:"eastBoundLongitude"`
		South cehNumber `json:"southBoundLatitude"`
		North cehNumber `json:"northBoundLatitude"`
	} `json:"boundingBoxes"`
	TemporalExtents []struct {
		Begin string `json:"begin"`
		End   string `json:"end"`
	} `json:"temporalExtents"`
	ResponsibleParties []struct {
		GivenName        string `json:"givenName"`
		FamilyName       string `json:"familyName"`
		IndividualName   string `json:"individualName"`
		OrganisationName string `json:"organisationName"`
		Role             string `json:"role"`
		Email            string `json:"email"`
		NameIdentifier   string `json:"nameIdentifier"`
	} `json:"responsibleParties"`
	OnlineResources []struct {
		URL         string `json:"url"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Function    string `json:"function"`
	} `json:"onlineResources"`
	Relationships []struct {
		Relation string `json:"relation"`
		Target   string `json:"target"`
		URL      string `json:"url"`
	} `json:"relationships"`
}

// Parse implements Parser.
func (p *JSONParser) Parse(content []byte) (*dataset.Dataset, error) {
	var doc cehDocument
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil, parseError(FormatJSON, "invalid JSON", err)
	}
	if doc.ID == nil || strings.TrimSpace(*doc.ID) == "" {
		return nil, parseError(FormatJSON, "missing required field: id", nil)
	}
	if doc.Title == nil {
		return nil, parseError(FormatJSON, "missing required field: title", nil)
	}

	ds := &dataset.Dataset{
		Identifier:  *doc.ID,
		Title:       *doc.Title,
		Abstract:    doc.Description,
		Lineage:     doc.Lineage,
		RawDocument: string(content),
	}

	for _, group := range [][]cehKeyword{
		doc.KeywordsOther, doc.KeywordsPlace, doc.KeywordsProject,
		doc.KeywordsTheme, doc.KeywordsInstrument,
	} {
		for _, kw := range group {
			ds.Keywords = append(ds.Keywords, string(kw))
		}
	}
	for _, tc := range doc.TopicCategories {
		ds.TopicCategories = append(ds.TopicCategories, string(tc))
	}

	if len(doc.BoundingBoxes) > 0 {
		b := doc.BoundingBoxes[0]
		ds.BoundingBox = &dataset.BoundingBox{
			West:  float64(b.West),
			East:  float64(b.East),
			South: float64(b.South),
			North: float64(b.North),
		}
	}

	if len(doc.TemporalExtents) > 0 {
		te := doc.TemporalExtents[0]
		start, end := parseDate(te.Begin), parseDate(te.End)
		if start != nil || end != nil {
			ds.TemporalExtent = &dataset.TemporalExtent{Start: start, End: end}
		}
	}

	for _, rp := range doc.ResponsibleParties {
		name := rp.IndividualName
		if name == "" {
			name = strings.TrimSpace(rp.GivenName + " " + rp.FamilyName)
		}
		party := dataset.ResponsibleParty{
			Name:         name,
			Organisation: rp.OrganisationName,
			Role:         roleFor(rp.Role),
			Email:        rp.Email,
		}
		if strings.Contains(rp.NameIdentifier, "orcid.org") {
			party.ORCID = rp.NameIdentifier
		}
		ds.ResponsibleParties = append(ds.ResponsibleParties, party)
	}

	for _, r := range doc.OnlineResources {
		if r.URL == "" {
			continue
		}
		ds.Distributions = append(ds.Distributions, dataset.Distribution{
			URL:         r.URL,
			Name:        r.Name,
			Description: r.Description,
			AccessType:  accessTypeFor(r.Function),
		})
	}

	for _, rel := range doc.Relationships {
		if rel.Target == "" {
			continue
		}
		ds.RelatedDocuments = append(ds.RelatedDocuments, dataset.RelatedDocument{
			Identifier:   rel.Target,
			Relationship: relationshipFor(rel.Relation),
			URL:          rel.URL,
		})
	}

	return ds, nil
}

// relationshipFor maps a CEH relation URI to a DS_AssociationTypeCode.
func relationshipFor(uri string) string {
	u := strings.ToLower(uri)
	switch {
	case strings.Contains(u, "memberof"), strings.Contains(u, "parent"):
		return "parent"
	case strings.Contains(u, "child"):
		return "child"
	case strings.Contains(u, "supersedes"), strings.Contains(u, "revision"):
		return "revisionOf"
	case strings.Contains(u, "source"):
		return "source"
	case strings.Contains(u, "series"):
		return "series"
	default:
		return "other"
	}
}
