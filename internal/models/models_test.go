package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTags(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"simple", "SaaS, B2B", []string{"b2b", "saas"}},
		{"dedupe", "saas, SaaS, saas", []string{"saas"}},
		{"whitespace", "  retail ,  logistics  ", []string{"logistics", "retail"}},
		{"empty entries", "a,,b,", []string{"a", "b"}},
		{"empty string", "", nil},
		{"only commas", ",,,", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseTags(tt.in))
		})
	}
}

func TestReadCompanies(t *testing.T) {
	input := strings.NewReader(
		"company_id,company_name,main_customers,main_product,category_list,extra\n" +
			"c1,Acme,farmers,tractors,\"AgTech, Hardware\",ignored\n" +
			"c2,Globex,retailers,shelving,,x\n")

	companies, err := ReadCompanies(input)
	require.NoError(t, err)
	require.Len(t, companies, 2)

	assert.Equal(t, "c1", companies[0].ID)
	assert.Equal(t, "Acme", companies[0].Name)
	assert.Equal(t, "farmers", companies[0].Customers)
	assert.Equal(t, "tractors", companies[0].Product)
	assert.Equal(t, []string{"agtech", "hardware"}, companies[0].Tags)
	assert.Nil(t, companies[1].Tags)
}

func TestReadCompaniesRejectsBadInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing id column", "name,main_customers\nAcme,farmers\n"},
		{"empty id", "company_id,main_customers\n,farmers\n"},
		{"duplicate id", "company_id,main_customers\nc1,farmers\nc1,bakers\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCompanies(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}
