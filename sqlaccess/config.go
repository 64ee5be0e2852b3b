// Package sqlaccess exposes curated, read-only access to registered
// relational databases: listing, schema introspection and guarded SELECT
// execution, all subject to per-schema table filters.
package sqlaccess

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/richinex/musicbi/internal/apperror"
)

// Supported database types.
const (
	DBTypeSQLite   = "sqlite"
	DBTypePostgres = "postgres"
)

// DefaultMaxRows caps the rows returned by one SELECT.
const DefaultMaxRows = 500

// ChinookIdentifier is the identifier of the bundled sample registration.
const ChinookIdentifier = "chinook sqlite"

const chinookDescription = "Chinook is a sample database available for SQL Server, Oracle, MySQL, etc. " +
	"It can be created by running a single SQL script. Chinook database is an alternative to the " +
	"Northwind database, being ideal for demos and testing ORM tools targeting single and multiple database servers."

// TableFilter selects the visible tables of a schema. An empty Include
// admits every table; Exclude always wins. Matching is case-insensitive.
type TableFilter struct {
	Include []string `yaml:"include" json:"include"`
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// Allows reports whether table is visible.
func (f TableFilter) Allows(table string) bool {
	for _, t := range f.Exclude {
		if strings.EqualFold(t, table) {
			return false
		}
	}
	if len(f.Include) == 0 {
		return true
	}
	for _, t := range f.Include {
		if strings.EqualFold(t, table) {
			return true
		}
	}
	return false
}

// Schema is one schema of a registered database. An empty Name is the
// default schema (main for SQLite, public for Postgres).
type Schema struct {
	Name        string      `yaml:"name" json:"name"`
	TableFilter TableFilter `yaml:"table_filter" json:"table_filter"`
}

// Database is one registration. It is reachable only through Identifier.
type Database struct {
	Identifier  string   `yaml:"identifier" json:"identifier"`
	Description string   `yaml:"description" json:"description"`
	DBType      string   `yaml:"db_type" json:"db_type"`
	URL         string   `yaml:"url" json:"url"`
	Schemas     []Schema `yaml:"schemas" json:"schemas"`
}

// Config lists every registered database.
type Config struct {
	Version   string     `yaml:"version" json:"version"`
	MaxRows   int        `yaml:"max_rows" json:"max_rows"`
	Databases []Database `yaml:"databases" json:"databases"`
}

// LoadConfig reads a YAML config, or JSON when the extension is .json.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeConfig, "read sql config", err)
	}
	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeConfig, "parse sql config "+path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ChinookConfig registers the Chinook sample database at path.
func ChinookConfig(path string) *Config {
	return &Config{
		Version: "0.1.1",
		Databases: []Database{{
			Identifier:  ChinookIdentifier,
			Description: chinookDescription,
			DBType:      DBTypeSQLite,
			URL:         path,
			Schemas:     []Schema{{}},
		}},
	}
}

// Validate checks registrations and fills defaults. Every problem is a
// CONFIG error.
func (c *Config) Validate() error {
	if len(c.Databases) == 0 {
		return apperror.Config("sql config registers no databases")
	}
	if c.MaxRows < 0 {
		return apperror.Config("max_rows must not be negative")
	}
	if c.MaxRows == 0 {
		c.MaxRows = DefaultMaxRows
	}

	seen := make(map[string]bool, len(c.Databases))
	for i := range c.Databases {
		db := &c.Databases[i]
		if strings.TrimSpace(db.Identifier) == "" {
			return apperror.Config("database %d has no identifier", i)
		}
		if seen[db.Identifier] {
			return apperror.Config("duplicate database identifier %q", db.Identifier)
		}
		seen[db.Identifier] = true

		db.DBType = strings.ToLower(db.DBType)
		if db.DBType == "postgresql" {
			db.DBType = DBTypePostgres
		}
		if db.DBType != DBTypeSQLite && db.DBType != DBTypePostgres {
			return apperror.Config("database %q: unsupported db_type %q", db.Identifier, db.DBType)
		}
		if strings.TrimSpace(db.URL) == "" {
			return apperror.Config("database %q: url is empty", db.Identifier)
		}

		if len(db.Schemas) == 0 {
			db.Schemas = []Schema{{}}
		}
		schemas := make(map[string]bool, len(db.Schemas))
		for _, s := range db.Schemas {
			if schemas[s.Name] {
				return apperror.Config("database %q: duplicate schema %q", db.Identifier, s.Name)
			}
			schemas[s.Name] = true
			if err := checkFilter(s.TableFilter); err != nil {
				return apperror.Config("database %q schema %q: %s", db.Identifier, s.Name, err)
			}
		}
	}
	return nil
}

func checkFilter(f TableFilter) error {
	for _, in := range f.Include {
		for _, ex := range f.Exclude {
			if strings.EqualFold(in, ex) {
				return fmt.Errorf("table %q is both included and excluded", in)
			}
		}
	}
	return nil
}

// Identifiers returns the registered identifiers in config order.
func (c *Config) Identifiers() []string {
	ids := make([]string, len(c.Databases))
	for i, db := range c.Databases {
		ids[i] = db.Identifier
	}
	return ids
}
