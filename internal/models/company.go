// Package models defines the record types flowing through the clustering pipeline.
package models

import (
	"sort"
	"strings"
)

// Company is one input record: a firm with short templated descriptions of
// its customers and its product, plus free-form category tags.
type Company struct {
	ID        string   `json:"id"`
	Name      string   `json:"name,omitempty"`
	Customers string   `json:"customers"`
	Product   string   `json:"product"`
	Tags      []string `json:"tags,omitempty"`
}

// ExclusionReason codes why a company was dropped before embedding.
type ExclusionReason string

// ReasonEmptyText means both descriptions normalized to empty strings.
const ReasonEmptyText ExclusionReason = "empty_text"

// Exclusion records a company removed from the embedding space.
// Excluded companies never receive a cluster id.
type Exclusion struct {
	CompanyID string          `json:"company_id"`
	Reason    ExclusionReason `json:"reason"`
}

// Assignment maps a company to its cluster, carrying the original fields
// through for convenience in the output table.
type Assignment struct {
	CompanyID string   `json:"company_id"`
	Name      string   `json:"name,omitempty"`
	Customers string   `json:"customers"`
	Product   string   `json:"product"`
	Tags      []string `json:"tags,omitempty"`
	ClusterID int      `json:"cluster_id"`
}

// ParseTags splits a delimiter-separated category list into a deduplicated,
// sorted tag slice. Empty entries are dropped.
func ParseTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	seen := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		tag := strings.ToLower(strings.TrimSpace(part))
		if tag == "" {
			continue
		}
		seen[tag] = struct{}{}
	}
	if len(seen) == 0 {
		return nil
	}
	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// TagString joins tags back into the canonical comma-separated form.
func TagString(tags []string) string {
	return strings.Join(tags, ", ")
}
