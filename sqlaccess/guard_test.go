package sqlaccess

import (
	"errors"
	"reflect"
	"testing"

	"github.com/richinex/musicbi/internal/apperror"
)

func TestCheckSelectAccepts(t *testing.T) {
	tests := []struct {
		name string
		sql  string
	}{
		{"plain", "SELECT * FROM Artist"},
		{"lowercase", "select name from artist limit 5"},
		{"trailing semicolon", "SELECT 1;"},
		{"cte", "WITH s AS (SELECT ArtistId FROM Album) SELECT * FROM s"},
		{"values", "VALUES (1), (2)"},
		{"parenthesized", "(SELECT 1) UNION (SELECT 2)"},
		{"keyword in string", "SELECT * FROM Track WHERE Name = 'DROP TABLE x; DELETE'"},
		{"keyword in quoted identifier", `SELECT "Update" FROM "Insert"`},
		{"keyword in comment", "SELECT 1 -- DELETE FROM Artist\n"},
		{"block comment", "/* INSERT */ SELECT 1"},
		{"replace function", "SELECT REPLACE(Name, 'a', 'b') FROM Artist"},
		{"postgres cast", "SELECT '1'::int"},
		{"positional param", "SELECT * FROM Track WHERE AlbumId = $1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := CheckSelect(tt.sql); err != nil {
				t.Fatalf("CheckSelect(%q) = %v, want nil", tt.sql, err)
			}
		})
	}
}

func TestCheckSelectRejects(t *testing.T) {
	tests := []struct {
		name   string
		sql    string
		reason string
	}{
		{"empty", "   ", ReasonEmpty},
		{"only comment", "-- nothing", ReasonEmpty},
		{"insert", "INSERT INTO Artist (Name) VALUES ('x')", ReasonNotSelect},
		{"update", "UPDATE Artist SET Name = 'x'", ReasonNotSelect},
		{"delete", "DELETE FROM Artist", ReasonNotSelect},
		{"drop", "DROP TABLE Artist", ReasonNotSelect},
		{"pragma", "PRAGMA table_info(Artist)", ReasonNotSelect},
		{"stacked", "SELECT 1; DROP TABLE Artist", ReasonMulti},
		{"stacked selects", "SELECT 1; SELECT 2", ReasonMulti},
		{"select into", "SELECT * INTO copy FROM Artist", ReasonKeyword},
		{"cte with delete", "WITH d AS (DELETE FROM Artist RETURNING *) SELECT * FROM d", ReasonKeyword},
		{"replace statement word", "SELECT 1 REPLACE", ReasonKeyword},
		{"sqlite catalog", "SELECT sql FROM sqlite_master", ReasonCatalog},
		{"quoted catalog", `SELECT * FROM "sqlite_schema"`, ReasonCatalog},
		{"information schema", "SELECT * FROM information_schema.tables", ReasonCatalog},
		{"unterminated string", "SELECT 'abc", ReasonSyntax},
		{"unterminated comment", "SELECT 1 /* open", ReasonSyntax},
		{"escape string", `SELECT E'\'', Salary FROM "Employee" --'`, ReasonSyntax},
		{"lowercase escape string", `SELECT e'x'`, ReasonSyntax},
		{"dollar quoted", "SELECT $$ ' $$, Salary FROM Employee --'", ReasonSyntax},
		{"tagged dollar quoted", "SELECT $q$x$q$", ReasonSyntax},
		{"catalog as string", "SELECT * FROM 'sqlite_master'", ReasonCatalog},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CheckSelect(tt.sql)
			if err == nil {
				t.Fatalf("CheckSelect(%q) accepted", tt.sql)
			}
			var re *RejectedError
			if !errors.As(err, &re) {
				t.Fatalf("error type = %T, want *RejectedError", err)
			}
			if re.Reason != tt.reason {
				t.Errorf("reason = %q, want %q (%v)", re.Reason, tt.reason, err)
			}
			if !apperror.HasCode(err, apperror.CodeValidation) {
				t.Errorf("code = %q, want VALIDATION", apperror.CodeOf(err))
			}
		})
	}
}

func TestCheckSelectParams(t *testing.T) {
	stmt, err := CheckSelect("SELECT * FROM Track WHERE AlbumId = :album AND Milliseconds > @ms AND AlbumId <> :album")
	if err != nil {
		t.Fatalf("CheckSelect: %v", err)
	}
	if want := []string{"album", "ms"}; !reflect.DeepEqual(stmt.Params, want) {
		t.Errorf("Params = %v, want %v", stmt.Params, want)
	}
	want := "SELECT * FROM Track WHERE AlbumId = @album AND Milliseconds > @ms AND AlbumId <> @album"
	if stmt.SQL != want {
		t.Errorf("SQL = %q, want %q", stmt.SQL, want)
	}
}

func TestCheckSelectIdentifiers(t *testing.T) {
	stmt, err := CheckSelect(`SELECT a.Name FROM "Artist" a JOIN [Album] b ON a.ArtistId = b.ArtistId`)
	if err != nil {
		t.Fatalf("CheckSelect: %v", err)
	}
	seen := map[string]bool{}
	for _, id := range stmt.Identifiers {
		seen[id] = true
	}
	for _, want := range []string{"artist", "album", "artistid", "name"} {
		if !seen[want] {
			t.Errorf("Identifiers %v missing %q", stmt.Identifiers, want)
		}
	}
}

func TestCheckSelectStringLiteralsAndQualifiers(t *testing.T) {
	stmt, err := CheckSelect(`SELECT e.Name, 'it''s' FROM hr.'Salaries' e WHERE e.Name = 'Employee'`)
	if err != nil {
		t.Fatalf("CheckSelect: %v", err)
	}
	seen := map[string]bool{}
	for _, id := range stmt.Identifiers {
		seen[id] = true
	}
	for _, want := range []string{"salaries", "employee", "it's", "hr"} {
		if !seen[want] {
			t.Errorf("Identifiers %v missing %q", stmt.Identifiers, want)
		}
	}
	if want := []string{"e", "hr", "e"}; !reflect.DeepEqual(stmt.Qualifiers, want) {
		t.Errorf("Qualifiers = %v, want %v", stmt.Qualifiers, want)
	}
}
