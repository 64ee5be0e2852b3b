package sqlaccess

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/richinex/musicbi/internal/apperror"
	"github.com/richinex/musicbi/internal/metrics"
)

// DatabaseSummary is what list_databases reports.
type DatabaseSummary struct {
	Identifier  string `json:"identifier"`
	Description string `json:"description"`
	DBType      string `json:"db_type"`
}

// Column describes one table column.
type Column struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	PrimaryKey bool   `json:"primary_key"`
}

// Table describes one visible table.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// SchemaDetails is the structure of one schema after filtering.
type SchemaDetails struct {
	Database string  `json:"database"`
	DBType   string  `json:"db_type"`
	Schema   string  `json:"schema"`
	Tables   []Table `json:"tables"`
}

// DatabaseDetails is the structure of every registered schema of a database.
type DatabaseDetails struct {
	Identifier  string          `json:"identifier"`
	Description string          `json:"description"`
	DBType      string          `json:"db_type"`
	Schemas     []SchemaDetails `json:"schemas"`
}

// ResultSet holds the rows of one SELECT.
type ResultSet struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	RowCount  int      `json:"row_count"`
	Truncated bool     `json:"truncated"`
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithQueryTimeout bounds each SELECT. Zero disables the bound.
func WithQueryTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		a.queryTimeout = d
	}
}

type registered struct {
	Database
	db *gorm.DB
}

// Adapter serves the five read-only operations over the registered databases.
// Connections are opened once and shared by concurrent callers.
type Adapter struct {
	cfg          *Config
	dbs          map[string]*registered
	logger       *slog.Logger
	queryTimeout time.Duration
}

// NewAdapter validates cfg and opens every registered database.
func NewAdapter(cfg *Config, opts ...Option) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &Adapter{
		cfg:          cfg,
		dbs:          make(map[string]*registered, len(cfg.Databases)),
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		queryTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}

	for _, reg := range cfg.Databases {
		db, err := open(reg)
		if err != nil {
			a.Close()
			return nil, apperror.Wrap(apperror.CodeConfig, fmt.Sprintf("open database %q", reg.Identifier), err)
		}
		a.dbs[reg.Identifier] = &registered{Database: reg, db: db}
		a.logger.Debug("database registered", "identifier", reg.Identifier, "db_type", reg.DBType)
	}
	return a, nil
}

func open(reg Database) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch reg.DBType {
	case DBTypeSQLite:
		dialector = sqlite.Open(sqliteReadOnlyDSN(reg.URL))
	case DBTypePostgres:
		dialector = postgres.Open(reg.URL)
	default:
		return nil, fmt.Errorf("unsupported db_type %q", reg.DBType)
	}
	return gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
}

// sqliteReadOnlyDSN turns a path or sqlite:/// URL into a read-only URI.
func sqliteReadOnlyDSN(url string) string {
	path := strings.TrimPrefix(url, "sqlite:///")
	path = strings.TrimPrefix(path, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return "file:" + path + "?mode=ro"
}

// Close closes every connection pool.
func (a *Adapter) Close() error {
	var firstErr error
	for _, r := range a.dbs {
		sqlDB, err := r.db.DB()
		if err == nil {
			err = sqlDB.Close()
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// MaxRows returns the row cap applied to SELECT results.
func (a *Adapter) MaxRows() int {
	return a.cfg.MaxRows
}

func (a *Adapter) lookup(identifier string) (*registered, error) {
	r, ok := a.dbs[identifier]
	if !ok {
		return nil, apperror.NotFound("unknown database identifier %q; registered identifiers: %s",
			identifier, quoteList(a.cfg.Identifiers()))
	}
	return r, nil
}

func (r *registered) schema(name string) (Schema, error) {
	if name == "" {
		return r.Schemas[0], nil
	}
	for _, s := range r.Schemas {
		if s.Name == name || (s.Name == "" && name == r.defaultSchema()) {
			return s, nil
		}
	}
	names := make([]string, len(r.Schemas))
	for i, s := range r.Schemas {
		names[i] = s.Name
		if s.Name == "" {
			names[i] = r.defaultSchema()
		}
	}
	return Schema{}, apperror.NotFound("schema %q is not registered for database %q; registered schemas: %s",
		name, r.Identifier, quoteList(names))
}

func (r *registered) defaultSchema() string {
	if r.DBType == DBTypePostgres {
		return "public"
	}
	return "main"
}

func (r *registered) schemaName(s Schema) string {
	if s.Name == "" {
		return r.defaultSchema()
	}
	return s.Name
}

// ListDatabases returns every registration in config order.
func (a *Adapter) ListDatabases(ctx context.Context) []DatabaseSummary {
	out := make([]DatabaseSummary, 0, len(a.cfg.Databases))
	for _, db := range a.cfg.Databases {
		out = append(out, DatabaseSummary{
			Identifier:  db.Identifier,
			Description: db.Description,
			DBType:      db.DBType,
		})
	}
	return out
}

// ListTables returns the visible tables of one schema, sorted.
func (a *Adapter) ListTables(ctx context.Context, identifier, schemaName string) ([]string, error) {
	r, err := a.lookup(identifier)
	if err != nil {
		return nil, err
	}
	s, err := r.schema(schemaName)
	if err != nil {
		return nil, err
	}
	return r.visibleTables(ctx, s)
}

// GetSchemaDetails describes the visible tables of one schema.
func (a *Adapter) GetSchemaDetails(ctx context.Context, identifier, schemaName string) (SchemaDetails, error) {
	r, err := a.lookup(identifier)
	if err != nil {
		return SchemaDetails{}, err
	}
	s, err := r.schema(schemaName)
	if err != nil {
		return SchemaDetails{}, err
	}
	return r.details(ctx, s)
}

// GetAllDatabaseDetails describes every registered schema of every database.
func (a *Adapter) GetAllDatabaseDetails(ctx context.Context) ([]DatabaseDetails, error) {
	out := make([]DatabaseDetails, 0, len(a.cfg.Databases))
	for _, reg := range a.cfg.Databases {
		r := a.dbs[reg.Identifier]
		dd := DatabaseDetails{
			Identifier:  r.Identifier,
			Description: r.Description,
			DBType:      r.DBType,
		}
		for _, s := range r.Schemas {
			sd, err := r.details(ctx, s)
			if err != nil {
				return nil, err
			}
			dd.Schemas = append(dd.Schemas, sd)
		}
		out = append(out, dd)
	}
	return out, nil
}

func (r *registered) details(ctx context.Context, s Schema) (SchemaDetails, error) {
	visible, err := r.visibleTables(ctx, s)
	if err != nil {
		return SchemaDetails{}, err
	}
	sd := SchemaDetails{
		Database: r.Identifier,
		DBType:   r.DBType,
		Schema:   r.schemaName(s),
		Tables:   []Table{},
	}
	for _, name := range visible {
		cols, err := r.columns(ctx, s, name)
		if err != nil {
			return SchemaDetails{}, err
		}
		sd.Tables = append(sd.Tables, Table{Name: name, Columns: cols})
	}
	return sd, nil
}

// relation is a table or view. Definition is the view's SQL, empty for
// base tables.
type relation struct {
	Name       string
	Definition string
}

// relations lists every table and view of the schema, before filtering.
func (r *registered) relations(ctx context.Context, s Schema) ([]relation, error) {
	var rels []relation
	switch r.DBType {
	case DBTypePostgres:
		err := r.db.WithContext(ctx).Raw(`
			SELECT t.table_name AS name, COALESCE(v.definition, '') AS definition
			FROM information_schema.tables t
			LEFT JOIN pg_catalog.pg_views v
				ON v.schemaname = t.table_schema AND v.viewname = t.table_name
			WHERE t.table_schema = ? AND t.table_type IN ('BASE TABLE', 'VIEW')`, r.schemaName(s)).
			Scan(&rels).Error
		if err != nil {
			return nil, apperror.Transient("list tables of "+r.Identifier, err)
		}
	default:
		if s.Name != "" && s.Name != "main" {
			return nil, apperror.NotFound("sqlite database %q has no schema %q", r.Identifier, s.Name)
		}
		err := r.db.WithContext(ctx).Raw(`
			SELECT name, CASE WHEN type = 'view' THEN COALESCE(sql, '') ELSE '' END AS definition
			FROM sqlite_master
			WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite!_%' ESCAPE '!'`).
			Scan(&rels).Error
		if err != nil {
			return nil, apperror.Transient("list tables of "+r.Identifier, err)
		}
	}
	sort.Slice(rels, func(i, j int) bool { return rels[i].Name < rels[j].Name })
	return rels, nil
}

// hiddenNames returns the lower-cased names of every relation a registered
// schema's filter hides, plus every view that reads one of them.
func (r *registered) hiddenNames(ctx context.Context) (map[string]bool, error) {
	hidden := make(map[string]bool)
	var views []relation
	for _, s := range r.Schemas {
		rels, err := r.relations(ctx, s)
		if err != nil {
			return nil, err
		}
		for _, rel := range rels {
			switch {
			case !s.TableFilter.Allows(rel.Name):
				hidden[strings.ToLower(rel.Name)] = true
			case rel.Definition != "":
				views = append(views, rel)
			}
		}
	}
	// views over views: repeat until nothing new is hidden
	for changed := true; changed; {
		changed = false
		for _, v := range views {
			name := strings.ToLower(v.Name)
			if !hidden[name] && readsHidden(v.Definition, hidden) {
				hidden[name] = true
				changed = true
			}
		}
	}
	return hidden, nil
}

// readsHidden reports whether a view definition names a hidden relation.
// A definition the lexer cannot read counts as hidden.
func readsHidden(definition string, hidden map[string]bool) bool {
	tokens, err := lex(definition)
	if err != nil {
		return true
	}
	for _, t := range tokens {
		switch t.kind {
		case tokWord, tokQuoted, tokString:
			if hidden[strings.ToLower(t.text)] {
				return true
			}
		}
	}
	return false
}

// visibleTables lists the tables and views of s that may be queried, sorted.
func (r *registered) visibleTables(ctx context.Context, s Schema) ([]string, error) {
	hidden, err := r.hiddenNames(ctx)
	if err != nil {
		return nil, err
	}
	rels, err := r.relations(ctx, s)
	if err != nil {
		return nil, err
	}
	visible := make([]string, 0, len(rels))
	for _, rel := range rels {
		if !hidden[strings.ToLower(rel.Name)] {
			visible = append(visible, rel.Name)
		}
	}
	return visible, nil
}

// knownSchemas lists, lower-cased, every schema the connection can name.
func (r *registered) knownSchemas(ctx context.Context) (map[string]bool, error) {
	var names []string
	var err error
	switch r.DBType {
	case DBTypePostgres:
		err = r.db.WithContext(ctx).Raw(`SELECT nspname FROM pg_catalog.pg_namespace`).Scan(&names).Error
	default:
		names = []string{"main", "temp"}
		var attached []string
		err = r.db.WithContext(ctx).Raw(`SELECT name FROM pragma_database_list`).Scan(&attached).Error
		names = append(names, attached...)
	}
	if err != nil {
		return nil, apperror.Transient("list schemas of "+r.Identifier, err)
	}
	known := make(map[string]bool, len(names))
	for _, n := range names {
		known[strings.ToLower(n)] = true
	}
	return known, nil
}

func (r *registered) columns(ctx context.Context, s Schema, table string) ([]Column, error) {
	qualified := table
	if r.DBType == DBTypePostgres {
		qualified = r.schemaName(s) + "." + table
	}
	types, err := r.db.WithContext(ctx).Migrator().ColumnTypes(qualified)
	if err != nil {
		return nil, apperror.Transient("describe "+table, err)
	}
	cols := make([]Column, 0, len(types))
	for _, ct := range types {
		col := Column{Name: ct.Name(), Type: ct.DatabaseTypeName()}
		if nullable, ok := ct.Nullable(); ok {
			col.Nullable = nullable
		}
		if pk, ok := ct.PrimaryKey(); ok {
			col.PrimaryKey = pk
		}
		cols = append(cols, col)
	}
	return cols, nil
}

// ExecuteSelect runs one guarded SELECT with optional named parameters
// (":name" or "@name"). The statement runs in a read-only transaction that
// is always rolled back. Rows beyond MaxRows are dropped and Truncated set.
func (a *Adapter) ExecuteSelect(ctx context.Context, identifier, query string, params map[string]any) (ResultSet, error) {
	r, err := a.lookup(identifier)
	if err != nil {
		return ResultSet{}, err
	}
	stmt, err := CheckSelect(query)
	if err != nil {
		return ResultSet{}, a.rejected(identifier, err)
	}
	if err := r.checkTables(ctx, stmt); err != nil {
		var re *RejectedError
		if errors.As(err, &re) {
			return ResultSet{}, a.rejected(identifier, err)
		}
		return ResultSet{}, err
	}
	var missing []string
	for _, p := range stmt.Params {
		if _, ok := params[p]; !ok {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return ResultSet{}, a.rejected(identifier, reject(ReasonParams, "missing values for parameters: %s", strings.Join(missing, ", ")))
	}

	if a.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.queryTimeout)
		defer cancel()
	}

	tx := r.db.WithContext(ctx).Begin(&sql.TxOptions{ReadOnly: true})
	if tx.Error != nil {
		return ResultSet{}, apperror.Transient("begin read-only transaction", tx.Error)
	}
	defer tx.Rollback()

	if r.DBType == DBTypePostgres {
		for _, set := range []string{r.searchPath(), "SET LOCAL standard_conforming_strings = on"} {
			if err := tx.Exec(set).Error; err != nil {
				return ResultSet{}, apperror.Transient("prepare read-only transaction", err)
			}
		}
	}

	var args []any
	if len(stmt.Params) > 0 {
		args = append(args, params)
	}
	rows, err := tx.Raw(stmt.SQL, args...).Rows()
	if err != nil {
		return ResultSet{}, apperror.Wrap(apperror.CodeValidation, "query failed", err)
	}
	defer rows.Close()

	rs, err := collect(rows, a.cfg.MaxRows)
	if err != nil {
		return ResultSet{}, apperror.Wrap(apperror.CodeValidation, "reading results failed", err)
	}
	a.logger.Debug("select executed", "database", identifier, "rows", rs.RowCount, "truncated", rs.Truncated)
	return rs, nil
}

func (a *Adapter) rejected(identifier string, err error) error {
	reason := ReasonSyntax
	var re *RejectedError
	if errors.As(err, &re) {
		reason = re.Reason
	}
	metrics.RecordSQLRejected(reason)
	a.logger.Info("select rejected", "database", identifier, "reason", reason, "error", err)
	return err
}

// checkTables rejects statements that name a hidden table or view, or that
// qualify a name with a schema the database has but does not register.
func (r *registered) checkTables(ctx context.Context, stmt *Statement) error {
	if len(stmt.Qualifiers) > 0 {
		known, err := r.knownSchemas(ctx)
		if err != nil {
			return err
		}
		if q, ok := unregisteredSchema(stmt, known, r.registeredSchemas()); ok {
			return reject(ReasonSchema, "schema %q is not registered for database %q", q, r.Identifier)
		}
	}
	hidden, err := r.hiddenNames(ctx)
	if err != nil {
		return err
	}
	for _, ident := range stmt.Identifiers {
		if hidden[ident] {
			return reject(ReasonTable, "table %q is not available", ident)
		}
	}
	return nil
}

func (r *registered) registeredSchemas() map[string]bool {
	out := make(map[string]bool, len(r.Schemas))
	for _, s := range r.Schemas {
		out[strings.ToLower(r.schemaName(s))] = true
	}
	return out
}

// unregisteredSchema returns the first qualifier that names a known schema
// outside the registered set. Table aliases and table names are not in
// known, so alias.column passes.
func unregisteredSchema(stmt *Statement, known, registered map[string]bool) (string, bool) {
	for _, q := range stmt.Qualifiers {
		if known[q] && !registered[q] {
			return q, true
		}
	}
	return "", false
}

// searchPath pins unqualified Postgres names to the registered schemas.
func (r *registered) searchPath() string {
	names := make([]string, 0, len(r.Schemas))
	for _, s := range r.Schemas {
		names = append(names, `"`+strings.ReplaceAll(r.schemaName(s), `"`, `""`)+`"`)
	}
	return "SET LOCAL search_path TO " + strings.Join(names, ", ")
}

func collect(rows *sql.Rows, maxRows int) (ResultSet, error) {
	cols, err := rows.Columns()
	if err != nil {
		return ResultSet{}, err
	}
	rs := ResultSet{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		if rs.RowCount == maxRows {
			rs.Truncated = true
			break
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return ResultSet{}, err
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		rs.Rows = append(rs.Rows, vals)
		rs.RowCount++
	}
	return rs, rows.Err()
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return strings.Join(quoted, ", ")
}
