package store

import (
	"fmt"
	"strings"
	"unicode"
)

const metaDDL = `
CREATE TABLE IF NOT EXISTS semdex_meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// TableName derives the deterministic chunk table name for a project. It is
// a pure function of its inputs so schema objects are discoverable without a
// lookup index.
func TableName(baseTable, project string) string {
	return sanitizeIdent(baseTable) + "_" + sanitizeIdent(project)
}

// vecTableName is the paired vec0 virtual table holding the embeddings.
func vecTableName(baseTable, project string) string {
	return "vec_" + TableName(baseTable, project)
}

// sanitizeIdent maps an arbitrary name onto a safe SQL identifier:
// lowercase, [a-z0-9_] only, never starting with a digit, never empty.
func sanitizeIdent(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLower(r) || unicode.IsDigit(r) || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := strings.Trim(b.String(), "_")
	if s == "" {
		s = "project"
	}
	if s[0] >= '0' && s[0] <= '9' {
		s = "p_" + s
	}
	return s
}

// likeEscape makes a string safe to use as a literal prefix in a LIKE
// pattern with ESCAPE '\'.
func likeEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

func chunkTableDDL(table string) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    project      TEXT NOT NULL,
    file_path    TEXT NOT NULL,
    chunk_index  INTEGER NOT NULL,
    chunk_text   TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(project, file_path, chunk_index)
);
CREATE INDEX IF NOT EXISTS idx_%s_path ON %s(file_path);
`, table, table, table)
}

func vecTableDDL(vecTable string, dim int, metric string) string {
	return fmt.Sprintf(`
CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(
    chunk_id INTEGER PRIMARY KEY,
    embedding float[%d] distance_metric=%s
);
`, vecTable, dim, metric)
}
