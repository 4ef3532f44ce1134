package parse

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/dataset"
)

// GEMINI element paths. xmlquery matches on the document's own prefixes,
// which the catalogue always emits as gmd/gco/gml.
const (
	xpIdentifier   = "//gmd:fileIdentifier/gco:CharacterString"
	xpTitle        = "//gmd:identificationInfo//gmd:citation//gmd:title/gco:CharacterString"
	xpAbstract     = "//gmd:identificationInfo//gmd:abstract/gco:CharacterString"
	xpLineage      = "//gmd:dataQualityInfo//gmd:lineage//gmd:statement/gco:CharacterString"
	xpKeywords     = "//gmd:descriptiveKeywords//gmd:keyword/gco:CharacterString"
	xpTopics       = "//gmd:topicCategory/gmd:MD_TopicCategoryCode"
	xpBoundingBox  = "//gmd:EX_GeographicBoundingBox"
	xpTimePeriod   = "//gml:TimePeriod"
	xpParties      = "//gmd:pointOfContact/gmd:CI_ResponsibleParty | //gmd:citedResponsibleParty/gmd:CI_ResponsibleParty"
	xpOnline       = "//gmd:distributionInfo//gmd:transferOptions//gmd:onLine/gmd:CI_OnlineResource"
	xpAggregations = "//gmd:aggregationInfo/gmd:MD_AggregateInformation"
)

// GeminiParser parses ISO 19115 GEMINI 2.3 XML documents.
type GeminiParser struct{}

// NewGeminiParser creates a GEMINI parser.
func NewGeminiParser() *GeminiParser {
	return &GeminiParser{}
}

// Format implements Parser.
func (p *GeminiParser) Format() Format { return FormatGemini }

// Parse implements Parser.
func (p *GeminiParser) Parse(content []byte) (*dataset.Dataset, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, parseError(FormatGemini, "invalid XML", err)
	}

	id := text(doc, xpIdentifier)
	if id == "" {
		return nil, parseError(FormatGemini, "missing required element: fileIdentifier", nil)
	}
	title := text(doc, xpTitle)
	if title == "" {
		return nil, parseError(FormatGemini, "missing required element: title", nil)
	}

	ds := &dataset.Dataset{
		Identifier:  id,
		Title:       title,
		Abstract:    text(doc, xpAbstract),
		Lineage:     text(doc, xpLineage),
		RawDocument: string(content),
	}

	for _, n := range xmlquery.Find(doc, xpKeywords) {
		ds.Keywords = append(ds.Keywords, strings.TrimSpace(n.InnerText()))
	}
	for _, n := range xmlquery.Find(doc, xpTopics) {
		ds.TopicCategories = append(ds.TopicCategories, strings.TrimSpace(n.InnerText()))
	}

	if box := xmlquery.FindOne(doc, xpBoundingBox); box != nil {
		ds.BoundingBox = geminiBoundingBox(box)
	}

	if period := xmlquery.FindOne(doc, xpTimePeriod); period != nil {
		start := parseDate(text(period, "gml:beginPosition"))
		end := parseDate(text(period, "gml:endPosition"))
		if start != nil || end != nil {
			ds.TemporalExtent = &dataset.TemporalExtent{Start: start, End: end}
		}
	}

	for _, n := range xmlquery.Find(doc, xpParties) {
		party := dataset.ResponsibleParty{
			Name:         text(n, "gmd:individualName/gco:CharacterString"),
			Organisation: text(n, "gmd:organisationName/gco:CharacterString"),
			Email:        text(n, ".//gmd:electronicMailAddress/gco:CharacterString"),
			Role:         roleFor(attr(n, "gmd:role/gmd:CI_RoleCode", "codeListValue")),
		}
		if party.Name == "" && party.Organisation == "" {
			continue
		}
		ds.ResponsibleParties = append(ds.ResponsibleParties, party)
	}

	for _, n := range xmlquery.Find(doc, xpOnline) {
		url := text(n, "gmd:linkage/gmd:URL")
		if url == "" {
			continue
		}
		ds.Distributions = append(ds.Distributions, dataset.Distribution{
			URL:         url,
			Name:        text(n, "gmd:name/gco:CharacterString"),
			Description: text(n, "gmd:description/gco:CharacterString"),
			AccessType:  accessTypeFor(attr(n, "gmd:function/gmd:CI_OnLineFunctionCode", "codeListValue")),
		})
	}

	for _, n := range xmlquery.Find(doc, xpAggregations) {
		target := text(n, ".//gmd:code/gco:CharacterString")
		if target == "" {
			continue
		}
		ds.RelatedDocuments = append(ds.RelatedDocuments, dataset.RelatedDocument{
			Identifier:   target,
			Relationship: attr(n, "gmd:associationType/gmd:DS_AssociationTypeCode", "codeListValue"),
		})
	}

	return ds, nil
}

func geminiBoundingBox(box *xmlquery.Node) *dataset.BoundingBox {
	coords := make([]float64, 4)
	for i, name := range []string{"westBoundLongitude", "eastBoundLongitude", "southBoundLatitude", "northBoundLatitude"} {
		v, err := strconv.ParseFloat(text(box, "gmd:"+name+"/gco:Decimal"), 64)
		if err != nil {
			return nil
		}
		coords[i] = v
	}
	return &dataset.BoundingBox{West: coords[0], East: coords[1], South: coords[2], North: coords[3]}
}

// text returns the trimmed inner text of the first match, or "".
func text(n *xmlquery.Node, expr string) string {
	found := xmlquery.FindOne(n, expr)
	if found == nil {
		return ""
	}
	return strings.TrimSpace(found.InnerText())
}

func attr(n *xmlquery.Node, expr, name string) string {
	found := xmlquery.FindOne(n, expr)
	if found == nil {
		return ""
	}
	return found.SelectAttr(name)
}
