package config

import (
	"regexp"
	"strings"
)

var (
	// Dataset, table and stage names. Only names matching this are ever
	// placed into query text; everything else is bound as a parameter.
	identPattern    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	projectPattern  = regexp.MustCompile(`^[a-z][a-z0-9.:-]{3,62}$`)
	bucketPattern   = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{1,61}[a-z0-9]$`)
	locationPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9-]{0,62}$`)
	prefixPattern   = regexp.MustCompile(`^[A-Za-z0-9._/-]*$`)
)

// maxIdentifierLength is the longest dataset or table name BigQuery accepts.
const maxIdentifierLength = 1024

var namingStrategies = map[string]bool{
	"date":    true,
	"content": true,
	"run":     true,
}

// Validate checks required fields and the charset of every identifier.
// The first problem found is returned as a *ConfigError.
func (c *Config) Validate() error {
	checks := []struct {
		field    string
		value    string
		valid    func(string) bool
		optional bool
	}{
		{"storage.bucket", c.Storage.Bucket, bucketPattern.MatchString, false},
		{"storage.project", c.Storage.Project, ValidProject, true},
		{"storage.prefix", c.Storage.Prefix, prefixPattern.MatchString, true},
		{"warehouse.project", c.Warehouse.Project, ValidProject, false},
		{"warehouse.dataset", c.Warehouse.Dataset, ValidIdentifier, false},
		{"warehouse.table", c.Warehouse.Table, ValidIdentifier, false},
		{"warehouse.stage", c.Warehouse.Stage, ValidIdentifier, false},
		{"warehouse.location", c.Warehouse.Location, locationPattern.MatchString, true},
		{"warehouse.runs_table", c.Warehouse.RunsTable, ValidIdentifier, true},
	}

	for _, chk := range checks {
		if chk.value == "" {
			if chk.optional {
				continue
			}
			return &ConfigError{Field: chk.field, Reason: "is required"}
		}
		if !chk.valid(chk.value) {
			return &ConfigError{Field: chk.field, Reason: "is not a valid name: " + quote(chk.value)}
		}
	}

	if strings.Contains(c.Storage.Prefix, "..") {
		return &ConfigError{Field: "storage.prefix", Reason: "must not contain ..: " + quote(c.Storage.Prefix)}
	}
	if c.Pipeline.Naming != "" && !namingStrategies[c.Pipeline.Naming] {
		return &ConfigError{Field: "pipeline.naming", Reason: "unknown strategy " + quote(c.Pipeline.Naming)}
	}
	if c.Warehouse.MaxBadRecords < 0 {
		return &ConfigError{Field: "warehouse.max_bad_records", Reason: "must not be negative"}
	}
	if c.Pipeline.Retry.Attempts < 0 {
		return &ConfigError{Field: "pipeline.retry.attempts", Reason: "must not be negative"}
	}

	return nil
}

// ValidIdentifier reports whether name is safe to place in query text.
func ValidIdentifier(name string) bool {
	return len(name) <= maxIdentifierLength && identPattern.MatchString(name)
}

// ValidProject reports whether project is a well-formed project ID.
func ValidProject(project string) bool {
	return projectPattern.MatchString(project)
}

func quote(s string) string {
	return `"` + s + `"`
}
