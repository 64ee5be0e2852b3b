// SQL tools: curated, read-only access to the registered databases.

package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/richinex/musicbi/sqlaccess"
)

// SQLAccess is the adapter surface the SQL tools need.
type SQLAccess interface {
	ListDatabases(ctx context.Context) []sqlaccess.DatabaseSummary
	ListTables(ctx context.Context, identifier, schema string) ([]string, error)
	GetAllDatabaseDetails(ctx context.Context) ([]sqlaccess.DatabaseDetails, error)
	GetSchemaDetails(ctx context.Context, identifier, schema string) (sqlaccess.SchemaDetails, error)
	ExecuteSelect(ctx context.Context, identifier, sql string, params map[string]any) (sqlaccess.ResultSet, error)
}

// SQLTools returns the five SQL tools in their canonical order.
func SQLTools(db SQLAccess) []Tool {
	return []Tool{
		&ListDatabasesTool{db: db},
		&ListTablesTool{db: db},
		&GetAllDatabaseDetailsTool{db: db},
		&GetSchemaDetailsTool{db: db},
		&ExecuteSelectTool{db: db},
	}
}

var (
	databaseIdentifierParam = ToolParameter{
		Name:        "database_identifier",
		ParamType:   "string",
		Description: "Identifier of a registered database, as returned by list_databases",
		Required:    true,
	}
	schemaNameParam = ToolParameter{
		Name:        "schema_name",
		ParamType:   "string",
		Description: "Schema to inspect. Omit for the default schema (main for SQLite, public for Postgres)",
		Required:    false,
	}
)

type databaseArgs struct {
	DatabaseIdentifier string `json:"database_identifier"`
	SchemaName         string `json:"schema_name"`
}

func validateDatabaseArgs(raw json.RawMessage) (databaseArgs, error) {
	var a databaseArgs
	if err := decodeArgs(raw, &a); err != nil {
		return a, err
	}
	return a, requireString("database_identifier", a.DatabaseIdentifier)
}

// ListDatabasesTool lists the registered databases.
type ListDatabasesTool struct {
	BaseTool
	db SQLAccess
}

func (t *ListDatabasesTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name: "list_databases",
		Description: `List all databases available to you.

Returns one line per database with its identifier, database type and a
description of what it contains. Call this first when you do not know
which database holds the data you need. Use the identifier exactly as
shown in every other SQL tool.`,
	}
}

func (t *ListDatabasesTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	dbs := t.db.ListDatabases(ctx)
	if len(dbs) == 0 {
		return SuccessResult("(no databases registered)"), nil
	}
	return SuccessResult(sqlaccess.FormatDatabases(dbs)), nil
}

// ListTablesTool lists the visible tables of one schema.
type ListTablesTool struct {
	db SQLAccess
}

func (t *ListTablesTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name: "list_tables",
		Description: `List the tables of a database schema.

Returns one table name per line. Only tables you are allowed to query are
listed. Use get_schema_details afterwards to see columns and keys.`,
		Parameters: []ToolParameter{databaseIdentifierParam, schemaNameParam},
	}
}

func (t *ListTablesTool) Validate(args json.RawMessage) error {
	_, err := validateDatabaseArgs(args)
	return err
}

func (t *ListTablesTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	a, err := validateDatabaseArgs(args)
	if err != nil {
		return FailureResult(err), nil
	}
	tables, err := t.db.ListTables(ctx, a.DatabaseIdentifier, a.SchemaName)
	if err != nil {
		return FailureResult(err), nil
	}
	if len(tables) == 0 {
		return SuccessResult("(no visible tables)"), nil
	}
	return SuccessResult(strings.Join(tables, "\n")), nil
}

// GetAllDatabaseDetailsTool dumps every registered schema.
type GetAllDatabaseDetailsTool struct {
	BaseTool
	db SQLAccess
}

func (t *GetAllDatabaseDetailsTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name: "get_all_database_details",
		Description: `Get the full structure of every database: each schema, its tables and
their columns with type, primary key and NOT NULL markers.

This is the quickest way to learn everything needed to write a correct
SELECT statement, at the cost of a longer response. Prefer
get_schema_details when you already know the database.`,
	}
}

func (t *GetAllDatabaseDetailsTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	all, err := t.db.GetAllDatabaseDetails(ctx)
	if err != nil {
		return FailureResult(err), nil
	}
	var b strings.Builder
	for _, db := range all {
		for _, s := range db.Schemas {
			b.WriteString(sqlaccess.FormatSchema(s))
			b.WriteString("\n")
		}
	}
	return SuccessResult(strings.TrimSpace(b.String())), nil
}

// GetSchemaDetailsTool describes one schema.
type GetSchemaDetailsTool struct {
	db SQLAccess
}

func (t *GetSchemaDetailsTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name: "get_schema_details",
		Description: `Get the structure of one database schema: its tables and their columns
with type, primary key and NOT NULL markers.

Use the column names exactly as shown when writing SQL.`,
		Parameters: []ToolParameter{databaseIdentifierParam, schemaNameParam},
	}
}

func (t *GetSchemaDetailsTool) Validate(args json.RawMessage) error {
	_, err := validateDatabaseArgs(args)
	return err
}

func (t *GetSchemaDetailsTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	a, err := validateDatabaseArgs(args)
	if err != nil {
		return FailureResult(err), nil
	}
	sd, err := t.db.GetSchemaDetails(ctx, a.DatabaseIdentifier, a.SchemaName)
	if err != nil {
		return FailureResult(err), nil
	}
	return SuccessResult(sqlaccess.FormatSchema(sd)), nil
}

// ExecuteSelectTool runs one read-only SELECT.
type ExecuteSelectTool struct {
	db SQLAccess
}

type executeSelectArgs struct {
	DatabaseIdentifier string `json:"database_identifier"`
	SQL                string `json:"sql"`
	Params             any    `json:"params"`
}

func (t *ExecuteSelectTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name: "execute_select_statement",
		Description: `Execute a single SELECT statement against a database and return the rows
as a markdown table.

Only read-only queries are accepted: the statement must start with SELECT,
WITH or VALUES, contain exactly one statement, and must not reference
system catalogs or tables hidden from you. Anything else is rejected with
an explanation. Named parameters are written :name or @name and their
values passed in params. Large results are truncated; add LIMIT or
aggregate when you only need a summary.`,
		Parameters: []ToolParameter{
			databaseIdentifierParam,
			{Name: "sql", ParamType: "string", Description: "The SELECT statement to run", Required: true},
			{Name: "params", ParamType: "object", Description: "Values for named parameters in the statement", Required: false},
		},
	}
}

func (t *ExecuteSelectTool) parse(raw json.RawMessage) (executeSelectArgs, map[string]any, error) {
	var a executeSelectArgs
	if err := decodeArgs(raw, &a); err != nil {
		return a, nil, err
	}
	if err := requireString("database_identifier", a.DatabaseIdentifier); err != nil {
		return a, nil, err
	}
	if err := requireString("sql", a.SQL); err != nil {
		return a, nil, err
	}
	params, err := objectArg(a.Params)
	return a, params, err
}

func (t *ExecuteSelectTool) Validate(args json.RawMessage) error {
	_, _, err := t.parse(args)
	return err
}

func (t *ExecuteSelectTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	a, params, err := t.parse(args)
	if err != nil {
		return FailureResult(err), nil
	}
	rs, err := t.db.ExecuteSelect(ctx, a.DatabaseIdentifier, a.SQL, params)
	if err != nil {
		return FailureResult(err), nil
	}
	return SuccessResult(sqlaccess.FormatResult(rs)), nil
}
