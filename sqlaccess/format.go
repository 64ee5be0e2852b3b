package sqlaccess

import (
	"fmt"
	"strings"
)

// FormatDatabases renders the list_databases output.
func FormatDatabases(dbs []DatabaseSummary) string {
	var b strings.Builder
	for _, db := range dbs {
		fmt.Fprintf(&b, "- %s (%s): %s\n", db.Identifier, db.DBType, db.Description)
	}
	return b.String()
}

// FormatSchema renders a schema as one line per table with its columns.
func FormatSchema(sd SchemaDetails) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Database %q (%s), schema %s\n", sd.Database, sd.DBType, sd.Schema)
	if len(sd.Tables) == 0 {
		b.WriteString("(no visible tables)\n")
		return b.String()
	}
	for _, t := range sd.Tables {
		cols := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			col := c.Name + " " + c.Type
			if c.PrimaryKey {
				col += " PK"
			}
			if !c.Nullable {
				col += " NOT NULL"
			}
			cols[i] = col
		}
		fmt.Fprintf(&b, "%s(%s)\n", t.Name, strings.Join(cols, ", "))
	}
	return b.String()
}

// FormatResult renders rows as a markdown table.
func FormatResult(rs ResultSet) string {
	if len(rs.Columns) == 0 {
		return "(no columns)"
	}
	var b strings.Builder
	b.WriteString("| " + strings.Join(rs.Columns, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(rs.Columns)) + "\n")
	for _, row := range rs.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = cell(v)
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	fmt.Fprintf(&b, "\n%d row(s)", rs.RowCount)
	if rs.Truncated {
		b.WriteString(" (truncated)")
	}
	return b.String()
}

func cell(v any) string {
	if v == nil {
		return "NULL"
	}
	s := fmt.Sprint(v)
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
