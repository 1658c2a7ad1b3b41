package models

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// Input CSV column names. The loader resolves columns by header, not
// position, so extra columns are ignored.
const (
	ColID        = "company_id"
	ColName      = "company_name"
	ColCustomers = "main_customers"
	ColProduct   = "main_product"
	ColTags      = "category_list"
)

// LoadCompanies reads the input table from path. One row per company;
// rows with a missing or duplicate id are rejected with an error, since
// the id is the join key for every downstream artifact.
func LoadCompanies(path string) ([]Company, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()
	return ReadCompanies(f)
}

// ReadCompanies parses CSV company records from r.
func ReadCompanies(r io.Reader) ([]Company, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.ToLower(name))] = i
	}
	idCol, ok := cols[ColID]
	if !ok {
		return nil, fmt.Errorf("input is missing required column %q", ColID)
	}

	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var companies []Company
	seen := make(map[string]struct{})
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", line, err)
		}
		if idCol >= len(row) {
			return nil, fmt.Errorf("row %d: missing %s", line, ColID)
		}
		id := strings.TrimSpace(row[idCol])
		if id == "" {
			return nil, fmt.Errorf("row %d: empty %s", line, ColID)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("row %d: duplicate %s %q", line, ColID, id)
		}
		seen[id] = struct{}{}

		companies = append(companies, Company{
			ID:        id,
			Name:      strings.TrimSpace(field(row, ColName)),
			Customers: field(row, ColCustomers),
			Product:   field(row, ColProduct),
			Tags:      ParseTags(field(row, ColTags)),
		})
	}
	return companies, nil
}
