// =============================================================================
// SEPA Direct Debit Export - Configuration Module
// =============================================================================
//
// This module loads the application configuration from a single YAML file.
// The file describes:
//   1. Global settings (export directory, logging, HTTP listen address)
//   2. The club's creditor profile and its group -> fee mapping
//   3. Where billable members are read from
//
// Execution date and purpose are NOT part of the file; they are supplied
// per run and merged in by ClubProfile.
//
// LOADING STRATEGY:
//   Unknown keys are rejected so a typo never silently falls back to a
//   default. Defaults are applied before validation.
//
// =============================================================================

package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/ginjaninja78/sepa-export/internal/types"
)

// Member sources.
const (
	SourceCSV      = "csv"
	SourceXLSX     = "xlsx"
	SourceSQLite   = "sqlite"
	SourcePostgres = "postgres"
)

// =============================================================================
// MAIN CONFIGURATION STRUCTURE
// =============================================================================

// Config holds the application configuration.
type Config struct {
	// ExportDir is the directory generated documents are written to.
	// Default: "./tmp"
	ExportDir string `yaml:"export_dir"`

	// LogLevel controls the verbosity of logging.
	// Valid values: "debug", "info", "warn", "error"
	// Default: "info"
	LogLevel string `yaml:"log_level"`

	// AllowEmptyExport produces a document with zero transactions when no
	// member qualifies. When false such a run fails.
	// Default: false
	AllowEmptyExport bool `yaml:"allow_empty_export"`

	// ListenAddr is the address the HTTP server listens on.
	// Default: "localhost:8080"
	ListenAddr string `yaml:"listen_addr"`

	// Club is the creditor profile.
	Club ClubConfig `yaml:"club"`

	// Members describes the member source.
	Members MemberSource `yaml:"members"`
}

// =============================================================================
// CLUB CONFIGURATION STRUCTURE
// =============================================================================

// ClubConfig is the static part of the creditor profile.
type ClubConfig struct {
	Name       string `yaml:"name"`
	IBAN       string `yaml:"iban"`
	BIC        string `yaml:"bic"`
	CreditorID string `yaml:"creditor_id"`

	// DefaultPurpose is used when a run does not supply a purpose.
	DefaultPurpose string `yaml:"default_purpose"`

	// GroupFeeMapping lists the fee charged per directory group. Each group
	// may appear only once.
	GroupFeeMapping []GroupFee `yaml:"group_fee_mapping"`
}

// GroupFee maps one directory group to a fee.
type GroupFee struct {
	GroupID int `yaml:"group_id"`

	// Fee is a decimal string such as "12.50". It is kept as a string in
	// the file so YAML never turns it into a float.
	Fee string `yaml:"fee"`
}

// =============================================================================
// MEMBER SOURCE STRUCTURE
// =============================================================================

// MemberSource describes where member rows come from.
type MemberSource struct {
	// Source is one of "csv", "xlsx", "sqlite", "postgres".
	// Default: "csv"
	Source string `yaml:"source"`

	// Path is the CSV or XLSX file, or the SQLite database file.
	Path string `yaml:"path"`

	// DSN is the PostgreSQL connection string.
	DSN string `yaml:"dsn"`

	// Groups selects billable members in the database. A member is exported
	// if they belong to at least one of these groups.
	Groups []int `yaml:"groups"`

	// Sheet is the XLSX sheet name. Empty means the first sheet.
	Sheet string `yaml:"sheet"`

	// CSVSettings are inlined so delimiter and encoding sit directly under
	// "members".
	CSVSettings `yaml:",inline"`

	// Columns maps member fields to header names in CSV and XLSX files.
	Columns ColumnMapping `yaml:"columns"`
}

// =============================================================================
// CSV SETTINGS STRUCTURE
// =============================================================================

// CSVSettings contains settings for parsing CSV files.
type CSVSettings struct {
	// Delimiter is the character used to separate fields in the CSV.
	// Common values: "," (comma), ";" (semicolon), "\t" (tab)
	// Default: ","
	Delimiter string `yaml:"delimiter"`

	// HeaderRows is the number of header rows. Multi-line headers are
	// merged column by column.
	// Default: 1
	HeaderRows int `yaml:"header_rows"`

	// Encoding is the character encoding of the CSV file.
	// Supported: "UTF-8", "ISO-8859-1", "Windows-1252"
	// Default: "UTF-8"
	Encoding string `yaml:"encoding"`
}

// ColumnMapping holds the header name of each member field.
type ColumnMapping struct {
	ID        string `yaml:"id"`
	LastName  string `yaml:"last_name"`
	FirstName string `yaml:"first_name"`
	IBAN      string `yaml:"iban"`
	BIC       string `yaml:"bic"`
	Bank      string `yaml:"bank"`
	Groups    string `yaml:"groups"`
}

// =============================================================================
// CONFIGURATION LOADING FUNCTIONS
// =============================================================================

// Load loads the configuration from a YAML file.
//
// PARAMETERS:
//   - configPath: The path to the configuration file.
//
// RETURNS:
//   - A pointer to the Config struct, with defaults applied.
//   - An error if the file cannot be read, parsed or validated.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	defer file.Close()

	return Parse(file)
}

// Parse decodes, defaults and validates a configuration from r.
func Parse(r io.Reader) (*Config, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var config Config
	if err := decoder.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply default values.
	applyDefaults(&config)

	// Validate the configuration.
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// applyDefaults sets default values for any unset configuration options.
func applyDefaults(config *Config) {
	if config.ExportDir == "" {
		config.ExportDir = "./tmp"
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.ListenAddr == "" {
		config.ListenAddr = "localhost:8080"
	}

	members := &config.Members
	if members.Source == "" {
		members.Source = SourceCSV
	}
	if members.Delimiter == "" {
		members.Delimiter = ","
	}
	if members.HeaderRows == 0 {
		members.HeaderRows = 1
	}
	if members.Encoding == "" {
		members.Encoding = "UTF-8"
	}

	columns := &members.Columns
	if columns.ID == "" {
		columns.ID = "id"
	}
	if columns.LastName == "" {
		columns.LastName = "last_name"
	}
	if columns.FirstName == "" {
		columns.FirstName = "first_name"
	}
	if columns.IBAN == "" {
		columns.IBAN = "iban"
	}
	if columns.BIC == "" {
		columns.BIC = "bic"
	}
	if columns.Bank == "" {
		columns.Bank = "bank"
	}
	if columns.Groups == "" {
		columns.Groups = "groups"
	}
}

// validateConfig checks the settings that can be checked without a run.
// The creditor profile itself is validated per run, together with the
// execution date and purpose.
func validateConfig(config *Config) error {
	switch strings.ToLower(config.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q is not one of debug, info, warn, error", config.LogLevel)
	}

	if _, err := config.Club.GroupFees(); err != nil {
		return err
	}

	members := config.Members
	switch members.Source {
	case SourceCSV, SourceXLSX:
		if members.Path == "" {
			return fmt.Errorf("members.path is required for source %q", members.Source)
		}
	case SourceSQLite:
		if members.Path == "" {
			return fmt.Errorf("members.path is required for source %q", members.Source)
		}
		if len(members.Groups) == 0 {
			return fmt.Errorf("members.groups is required for source %q", members.Source)
		}
	case SourcePostgres:
		if members.DSN == "" {
			return fmt.Errorf("members.dsn is required for source %q", members.Source)
		}
		if len(members.Groups) == 0 {
			return fmt.Errorf("members.groups is required for source %q", members.Source)
		}
	default:
		return fmt.Errorf("members.source %q is not one of csv, xlsx, sqlite, postgres", members.Source)
	}

	if members.HeaderRows < 0 {
		return fmt.Errorf("members.header_rows must be at least 1")
	}

	return nil
}

// =============================================================================
// CLUB PROFILE
// =============================================================================

// GroupFees converts the configured mapping into a fee table.
// A duplicate group id or a fee that is not a decimal number is an error.
func (c ClubConfig) GroupFees() (map[int]decimal.Decimal, error) {
	table := make(map[int]decimal.Decimal, len(c.GroupFeeMapping))

	for _, entry := range c.GroupFeeMapping {
		if _, exists := table[entry.GroupID]; exists {
			return nil, fmt.Errorf("group_fee_mapping: group %d is listed more than once", entry.GroupID)
		}

		fee, err := decimal.NewFromString(strings.TrimSpace(entry.Fee))
		if err != nil {
			return nil, fmt.Errorf("group_fee_mapping: fee %q for group %d: %w", entry.Fee, entry.GroupID, err)
		}

		table[entry.GroupID] = fee
	}

	return table, nil
}

// ClubProfile assembles the creditor profile for one run. An empty purpose
// falls back to the configured default purpose. The result is not validated;
// the export pipeline does that.
func (c *Config) ClubProfile(executionDate, purpose string) (types.Club, error) {
	fees, err := c.Club.GroupFees()
	if err != nil {
		return types.Club{}, err
	}

	if strings.TrimSpace(purpose) == "" {
		purpose = c.Club.DefaultPurpose
	}

	return types.Club{
		Name:          c.Club.Name,
		IBAN:          c.Club.IBAN,
		BIC:           c.Club.BIC,
		CreditorID:    c.Club.CreditorID,
		ExecutionDate: executionDate,
		Purpose:       purpose,
		GroupFees:     fees,
	}, nil
}
