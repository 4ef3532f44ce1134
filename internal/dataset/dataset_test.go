package dataset

import (
	"testing"
	"time"

	dsherrors "github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		ds      *Dataset
		wantErr bool
	}{
		{"valid", &Dataset{Identifier: "abc", Title: "Rainfall"}, false},
		{"nil", nil, true},
		{"missing id", &Dataset{Title: "Rainfall"}, true},
		{"blank title", &Dataset{Identifier: "abc", Title: "  "}, true},
		{"bad latitude", &Dataset{Identifier: "abc", Title: "t", BoundingBox: &BoundingBox{South: -95, North: 10}}, true},
		{"north below south", &Dataset{Identifier: "abc", Title: "t", BoundingBox: &BoundingBox{South: 50, North: 40}}, true},
		{"antimeridian box", &Dataset{Identifier: "abc", Title: "t", BoundingBox: &BoundingBox{West: 170, East: -170, South: 0, North: 10}}, false},
		{"reversed period", &Dataset{Identifier: "abc", Title: "t", TemporalExtent: &TemporalExtent{Start: &start, End: &end}}, true},
		{"unknown access", &Dataset{Identifier: "abc", Title: "t", AccessLevel: "secret"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ds.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, dsherrors.ErrValidation)
				assert.Equal(t, dsherrors.KindPermanent, dsherrors.Classify(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSearchText(t *testing.T) {
	ds := &Dataset{
		Title:    "Land Cover Map 2015",
		Abstract: "Land cover for the UK.",
		Keywords: []string{"land cover", "UK"},
	}

	assert.Equal(t, "Land Cover Map 2015\n\nLand cover for the UK.\n\nland cover, UK", ds.SearchText())
}

func TestNormalize(t *testing.T) {
	ds := &Dataset{
		Identifier: " abc ",
		Title:      " Soil ",
		Keywords:   []string{"Soil", "soil", "", " carbon "},
	}

	ds.Normalize()

	assert.Equal(t, "abc", ds.Identifier)
	assert.Equal(t, "Soil", ds.Title)
	assert.Equal(t, []string{"Soil", "carbon"}, ds.Keywords)
	assert.Equal(t, AccessPublic, ds.AccessLevel)
}

func TestOrganisation(t *testing.T) {
	ds := &Dataset{ResponsibleParties: []ResponsibleParty{
		{Name: "A. Person"},
		{Organisation: "UK Centre for Ecology & Hydrology"},
	}}

	assert.Equal(t, "UK Centre for Ecology & Hydrology", ds.Organisation())
}
