package sqlaccess

import (
	"strings"
	"unicode"

	"github.com/richinex/musicbi/internal/apperror"
)

// Rejection reasons, also used as metric labels.
const (
	ReasonEmpty     = "empty"
	ReasonSyntax    = "syntax"
	ReasonMulti     = "multiple_statements"
	ReasonNotSelect = "not_select"
	ReasonKeyword   = "forbidden_keyword"
	ReasonCatalog   = "catalog_access"
	ReasonTable     = "filtered_table"
	ReasonSchema    = "unregistered_schema"
	ReasonParams    = "missing_params"
)

var allowedLeading = map[string]bool{
	"SELECT": true,
	"WITH":   true,
	"VALUES": true,
}

var forbiddenKeywords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "DROP": true,
	"ALTER": true, "CREATE": true, "REPLACE": true, "TRUNCATE": true,
	"ATTACH": true, "DETACH": true, "PRAGMA": true, "VACUUM": true,
	"GRANT": true, "REVOKE": true, "MERGE": true, "UPSERT": true,
	"CALL": true, "EXEC": true, "EXECUTE": true, "COPY": true,
	"INTO": true, "REINDEX": true, "LOCK": true,
}

// catalogNames expose the structure of every table, filtered or not.
var catalogNames = map[string]bool{
	"sqlite_master":      true,
	"sqlite_schema":      true,
	"sqlite_temp_master": true,
	"sqlite_temp_schema": true,
	"information_schema": true,
	"pg_catalog":         true,
	"pg_class":           true,
	"pg_tables":          true,
	"pg_namespace":       true,
	"pg_attribute":       true,
}

// RejectedError is a VALIDATION error carrying the rejection reason.
type RejectedError struct {
	Reason string
	*apperror.AppError
}

func reject(reason, format string, args ...any) error {
	return &RejectedError{Reason: reason, AppError: apperror.Validation(format, args...)}
}

// Unwrap exposes the AppError so apperror helpers see the VALIDATION code.
func (e *RejectedError) Unwrap() error {
	return e.AppError
}

type tokenKind int

const (
	tokWord tokenKind = iota
	tokQuoted
	tokString
	tokNumber
	tokParam
	tokSemicolon
	tokPunct
)

type token struct {
	kind tokenKind
	text string // words upper-cased, quoted identifiers and strings unquoted
	pos  int
}

// Statement is a single SELECT that passed CheckSelect.
type Statement struct {
	// SQL is the statement with ":name" parameters rewritten to "@name".
	SQL string
	// Identifiers holds every name token and string literal, lower-cased,
	// for table filtering. SQLite resolves 'Employee' in a FROM clause as a
	// table name.
	Identifiers []string
	// Qualifiers holds the names written before a dot (schema.table or
	// alias.column), lower-cased.
	Qualifiers []string
	// Params lists the named parameters the statement references.
	Params []string
}

// CheckSelect accepts exactly one read-only query: it must start with
// SELECT, WITH or VALUES and contain no write or DDL keyword outside
// string literals and quoted identifiers. A trailing semicolon is allowed.
func CheckSelect(sql string) (*Statement, error) {
	tokens, err := lex(sql)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, reject(ReasonEmpty, "statement is empty")
	}

	// trailing semicolons only
	end := len(tokens)
	for end > 0 && tokens[end-1].kind == tokSemicolon {
		end--
	}
	tokens = tokens[:end]
	for _, t := range tokens {
		if t.kind == tokSemicolon {
			return nil, reject(ReasonMulti, "only a single statement is allowed")
		}
	}
	if len(tokens) == 0 {
		return nil, reject(ReasonEmpty, "statement is empty")
	}

	first := 0
	for first < len(tokens) && tokens[first].kind == tokPunct && tokens[first].text == "(" {
		first++
	}
	if first == len(tokens) || tokens[first].kind != tokWord || !allowedLeading[tokens[first].text] {
		return nil, reject(ReasonNotSelect, "only SELECT statements are allowed")
	}

	stmt := &Statement{}
	var rewritten strings.Builder
	last := 0
	seenParam := map[string]bool{}
	for i, t := range tokens {
		if t.kind == tokWord || t.kind == tokQuoted || t.kind == tokString {
			if i+1 < len(tokens) && tokens[i+1].kind == tokPunct && tokens[i+1].text == "." {
				stmt.Qualifiers = append(stmt.Qualifiers, strings.ToLower(t.text))
			}
		}
		switch t.kind {
		case tokWord:
			if forbiddenKeywords[t.text] {
				// REPLACE( is the string function
				if t.text == "REPLACE" && i+1 < len(tokens) && tokens[i+1].text == "(" {
					break
				}
				return nil, reject(ReasonKeyword, "%s is not allowed in a read-only query", t.text)
			}
			lower := strings.ToLower(t.text)
			if catalogNames[lower] {
				return nil, reject(ReasonCatalog, "system catalog %s cannot be queried; use the schema tools", lower)
			}
			stmt.Identifiers = append(stmt.Identifiers, lower)
		case tokQuoted, tokString:
			lower := strings.ToLower(t.text)
			if catalogNames[lower] {
				return nil, reject(ReasonCatalog, "system catalog %s cannot be queried; use the schema tools", lower)
			}
			stmt.Identifiers = append(stmt.Identifiers, lower)
		case tokParam:
			name := t.text
			if !seenParam[name] {
				seenParam[name] = true
				stmt.Params = append(stmt.Params, name)
			}
			if sql[t.pos] == ':' {
				rewritten.WriteString(sql[last:t.pos])
				rewritten.WriteByte('@')
				last = t.pos + 1
			}
		}
	}
	rewritten.WriteString(sql[last:])
	stmt.SQL = strings.TrimSpace(rewritten.String())
	return stmt, nil
}

// lex tokenizes sql, dropping comments and whitespace.
func lex(sql string) ([]token, error) {
	var tokens []token
	i := 0
	n := len(sql)
	for i < n {
		c := sql[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f':
			i++
		case c == '-' && i+1 < n && sql[i+1] == '-':
			for i < n && sql[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < n && sql[i+1] == '*':
			closing := strings.Index(sql[i+2:], "*/")
			if closing < 0 {
				return nil, reject(ReasonSyntax, "unterminated comment")
			}
			i += 2 + closing + 2
		case c == '\'':
			j, err := scanQuoted(sql, i, '\'')
			if err != nil {
				return nil, err
			}
			inner := strings.ReplaceAll(sql[i+1:j-1], "''", "'")
			tokens = append(tokens, token{kind: tokString, text: inner, pos: i})
			i = j
		case (c == 'E' || c == 'e') && i+1 < n && sql[i+1] == '\'':
			// Postgres reads backslash escapes here and SQLite does not, so
			// the two would disagree on where the literal ends.
			return nil, reject(ReasonSyntax, "escape string literals (E'...') are not supported; use standard quoting")
		case c == '$' && dollarTag(sql[i:]) > 0:
			return nil, reject(ReasonSyntax, "dollar-quoted literals are not supported; use standard quoting")
		case c == '"' || c == '`':
			j, err := scanQuoted(sql, i, c)
			if err != nil {
				return nil, err
			}
			inner := sql[i+1 : j-1]
			inner = strings.ReplaceAll(inner, string([]byte{c, c}), string(c))
			tokens = append(tokens, token{kind: tokQuoted, text: inner, pos: i})
			i = j
		case c == '[':
			closing := strings.IndexByte(sql[i:], ']')
			if closing < 0 {
				return nil, reject(ReasonSyntax, "unterminated bracketed identifier")
			}
			tokens = append(tokens, token{kind: tokQuoted, text: sql[i+1 : i+closing], pos: i})
			i += closing + 1
		case (c == ':' || c == '@') && i+1 < n && isIdentStart(rune(sql[i+1])) && !(i > 0 && sql[i-1] == ':'):
			j := i + 1
			for j < n && isIdentPart(rune(sql[j])) {
				j++
			}
			tokens = append(tokens, token{kind: tokParam, text: sql[i+1 : j], pos: i})
			i = j
		case isIdentStart(rune(c)):
			j := i + 1
			for j < n && isIdentPart(rune(sql[j])) {
				j++
			}
			tokens = append(tokens, token{kind: tokWord, text: strings.ToUpper(sql[i:j]), pos: i})
			i = j
		case c >= '0' && c <= '9':
			j := i + 1
			for j < n && (isIdentPart(rune(sql[j])) || sql[j] == '.') {
				j++
			}
			tokens = append(tokens, token{kind: tokNumber, text: sql[i:j], pos: i})
			i = j
		case c == ';':
			tokens = append(tokens, token{kind: tokSemicolon, text: ";", pos: i})
			i++
		default:
			tokens = append(tokens, token{kind: tokPunct, text: string(c), pos: i})
			i++
		}
	}
	return tokens, nil
}

// scanQuoted returns the index just past the closing quote, honoring doubled quotes.
func scanQuoted(sql string, start int, quote byte) (int, error) {
	i := start + 1
	for i < len(sql) {
		if sql[i] == quote {
			if i+1 < len(sql) && sql[i+1] == quote {
				i += 2
				continue
			}
			return i + 1, nil
		}
		i++
	}
	return 0, reject(ReasonSyntax, "unterminated quoted literal starting at offset %d", start)
}

// dollarTag returns the length of a leading $tag$ or $$ opener, or 0.
func dollarTag(s string) int {
	if len(s) < 2 || s[0] != '$' {
		return 0
	}
	i := 1
	if s[i] != '$' && !(s[i] == '_' || unicode.IsLetter(rune(s[i]))) {
		return 0
	}
	for i < len(s) && s[i] != '$' {
		c := rune(s[i])
		if !(c == '_' || unicode.IsLetter(c) || unicode.IsDigit(c)) {
			return 0
		}
		i++
	}
	if i == len(s) {
		return 0
	}
	return i + 1
}

func isIdentStart(r rune) bool {
	return r == '_' || r >= 0x80 || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r) || r == '$'
}
