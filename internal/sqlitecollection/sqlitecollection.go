// Package sqlitecollection implements chronicle's Collection interface on
// top of SQLite, storing each document as a JSON blob in a single table and
// translating filters into json_extract expressions so that CreateIndex can
// back them with real SQLite indexes.
package sqlitecollection

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/docver/chronicle"

	// Pure Go SQLite driver; registers itself under the "sqlite" name.
	_ "modernc.org/sqlite"
)

// Config configures the SQLite-backed collection store.
type Config struct {
	// Path to the SQLite database file. ":memory:" opens an in-memory
	// database, useful for tests that still want real SQL semantics.
	Path string

	// CacheSize is the SQLite page cache size in KB.
	CacheSize int

	// JournalMode sets the SQLite journal mode (WAL, DELETE, ...).
	JournalMode string

	// Synchronous sets the synchronous flag (OFF, NORMAL, FULL, EXTRA).
	Synchronous string

	// BusyTimeout is the timeout for acquiring locks in milliseconds.
	BusyTimeout int

	// MaxConnections is the max number of database connections.
	MaxConnections int
}

// DefaultConfig returns the default SQLite configuration.
func DefaultConfig() Config {
	return Config{
		Path:           "chronicle.db",
		CacheSize:      2000,
		JournalMode:    "WAL",
		Synchronous:    "NORMAL",
		BusyTimeout:    5000,
		MaxConnections: 10,
	}
}

// Store opens the underlying *sql.DB and hands out one Collection per table
// name, all backed by the same connection pool.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	closed bool
}

// Open opens (creating if necessary) the SQLite database described by cfg.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		cfg.Path = "chronicle.db"
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 2000
	}
	if cfg.JournalMode == "" {
		cfg.JournalMode = "WAL"
	}
	if cfg.Synchronous == "" {
		cfg.Synchronous = "NORMAL"
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5000
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 10
	}

	dsn := fmt.Sprintf("%s?_pragma=cache_size(-%d)&_pragma=journal_mode(%s)&_pragma=synchronous(%s)&_pragma=busy_timeout(%d)",
		cfg.Path, cfg.CacheSize, cfg.JournalMode, cfg.Synchronous, cfg.BusyTimeout)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitecollection: open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxConnections / 2)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitecollection: ping: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Collection returns a handle for the named table, creating it if it does
// not already exist.
func (s *Store) Collection(ctx context.Context, name string) (*Collection, error) {
	table := sanitizeIdent(name)
	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		rowid INTEGER PRIMARY KEY AUTOINCREMENT,
		doc TEXT NOT NULL
	)`, table)
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("sqlitecollection: create table %s: %w", table, err)
	}
	return &Collection{db: s.db, table: table}, nil
}

// Collection is a single SQLite-table-backed chronicle.Collection.
type Collection struct {
	db    *sql.DB
	table string
}

func sanitizeIdent(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "collection"
	}
	return b.String()
}

func jsonPath(field string) string {
	return "'$." + field + "'"
}

// filterClause translates a chronicle filter map into a SQL WHERE fragment
// (without the leading "WHERE") plus its positional arguments. Supported
// comparison operators mirror the subset the core engine emits: $gt, $gte,
// $lt, $lte, $ne, $in.
func filterClause(filter map[string]any) (string, []any) {
	if len(filter) == 0 {
		return "1=1", nil
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var clauses []string
	var args []any
	for _, field := range keys {
		val := filter[field]
		expr := "json_extract(doc, " + jsonPath(field) + ")"
		if ops, ok := val.(map[string]any); ok && isOperatorMap(ops) {
			opKeys := make([]string, 0, len(ops))
			for k := range ops {
				opKeys = append(opKeys, k)
			}
			sort.Strings(opKeys)
			for _, op := range opKeys {
				v := ops[op]
				switch op {
				case "$gt":
					clauses = append(clauses, expr+" > ?")
					args = append(args, normalizeValue(v))
				case "$gte":
					clauses = append(clauses, expr+" >= ?")
					args = append(args, normalizeValue(v))
				case "$lt":
					clauses = append(clauses, expr+" < ?")
					args = append(args, normalizeValue(v))
				case "$lte":
					clauses = append(clauses, expr+" <= ?")
					args = append(args, normalizeValue(v))
				case "$ne":
					if v == nil {
						clauses = append(clauses, expr+" IS NOT NULL")
					} else {
						clauses = append(clauses, "("+expr+" IS NULL OR "+expr+" != ?)")
						args = append(args, normalizeValue(v))
					}
				case "$in":
					list, _ := v.([]any)
					if len(list) == 0 {
						clauses = append(clauses, "0=1")
						continue
					}
					placeholders := make([]string, len(list))
					for i, item := range list {
						placeholders[i] = "?"
						args = append(args, normalizeValue(item))
					}
					clauses = append(clauses, expr+" IN ("+strings.Join(placeholders, ",")+")")
				}
			}
			continue
		}
		if val == nil {
			clauses = append(clauses, expr+" IS NULL")
			continue
		}
		clauses = append(clauses, expr+" = ?")
		args = append(args, normalizeValue(val))
	}
	if len(clauses) == 0 {
		return "1=1", nil
	}
	return strings.Join(clauses, " AND "), args
}

// filterClauseLiteral renders a filter map as a self-contained SQL WHERE
// fragment with values inlined as literals rather than bound placeholders.
// SQLite rejects bound parameters in a partial index's WHERE clause
// ("parameters prohibited in partial index WHERE clauses"), so CreateIndex
// uses this instead of filterClause. Safe here because index definitions
// are static values chosen by the core engine, never user input.
func filterClauseLiteral(filter map[string]any) string {
	if len(filter) == 0 {
		return "1=1"
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var clauses []string
	for _, field := range keys {
		val := filter[field]
		expr := "json_extract(doc, " + jsonPath(field) + ")"
		if ops, ok := val.(map[string]any); ok && isOperatorMap(ops) {
			opKeys := make([]string, 0, len(ops))
			for k := range ops {
				opKeys = append(opKeys, k)
			}
			sort.Strings(opKeys)
			for _, op := range opKeys {
				v := ops[op]
				switch op {
				case "$gt":
					clauses = append(clauses, expr+" > "+sqlLiteral(v))
				case "$gte":
					clauses = append(clauses, expr+" >= "+sqlLiteral(v))
				case "$lt":
					clauses = append(clauses, expr+" < "+sqlLiteral(v))
				case "$lte":
					clauses = append(clauses, expr+" <= "+sqlLiteral(v))
				case "$ne":
					if v == nil {
						clauses = append(clauses, expr+" IS NOT NULL")
					} else {
						clauses = append(clauses, "("+expr+" IS NULL OR "+expr+" != "+sqlLiteral(v)+")")
					}
				case "$in":
					list, _ := v.([]any)
					if len(list) == 0 {
						clauses = append(clauses, "0=1")
						continue
					}
					literals := make([]string, len(list))
					for i, item := range list {
						literals[i] = sqlLiteral(item)
					}
					clauses = append(clauses, expr+" IN ("+strings.Join(literals, ",")+")")
				}
			}
			continue
		}
		if val == nil {
			clauses = append(clauses, expr+" IS NULL")
			continue
		}
		clauses = append(clauses, expr+" = "+sqlLiteral(val))
	}
	if len(clauses) == 0 {
		return "1=1"
	}
	return strings.Join(clauses, " AND ")
}

// sqlLiteral renders v as a SQL literal for inlining into filterClauseLiteral.
func sqlLiteral(v any) string {
	switch t := normalizeValue(v).(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(t, "'", "''") + "'"
	default:
		return fmt.Sprintf("%v", t)
	}
}

func isOperatorMap(m map[string]any) bool {
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return len(m) > 0
}

// normalizeValue converts Go values coming from filter maps into the
// representation json_extract will compare equal against: SQLite's JSON
// functions surface JSON booleans as integers 0/1.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case bool:
		if t {
			return int64(1)
		}
		return int64(0)
	default:
		return t
	}
}

func orderClause(sortSpec chronicle.SortSpec) string {
	if len(sortSpec) == 0 {
		return ""
	}
	fields := make([]string, 0, len(sortSpec))
	for f := range sortSpec {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		dir := "ASC"
		if sortSpec[f] < 0 {
			dir = "DESC"
		}
		parts = append(parts, "json_extract(doc, "+jsonPath(f)+") "+dir)
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

func (c *Collection) selectRows(ctx context.Context, filter map[string]any, limit int, order string) ([]map[string]any, error) {
	where, args := filterClause(filter)
	query := fmt.Sprintf("SELECT doc FROM %s WHERE %s%s", c.table, where, order)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlitecollection: query: %w", err)
	}
	defer rows.Close()

	var results []map[string]any
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("sqlitecollection: scan: %w", err)
		}
		var doc map[string]any
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("sqlitecollection: decode doc: %w", err)
		}
		results = append(results, doc)
	}
	return results, rows.Err()
}

func applyProjection(doc map[string]any, projection []string) map[string]any {
	if len(projection) == 0 {
		return doc
	}
	out := make(map[string]any, len(projection))
	for _, f := range projection {
		if v, ok := doc[f]; ok {
			out[f] = v
		}
	}
	return out
}

// InsertOne stores doc as a new row.
func (c *Collection) InsertOne(ctx context.Context, doc map[string]any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("sqlitecollection: encode doc: %w", err)
	}
	_, err = c.db.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (doc) VALUES (?)", c.table), string(raw))
	if err != nil {
		return fmt.Errorf("sqlitecollection: insert: %w", err)
	}
	return nil
}

func mergeDoc(base, update map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(update))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range update {
		out[k] = v
	}
	return out
}

func docFromFilter(filter map[string]any) map[string]any {
	doc := make(map[string]any, len(filter))
	for k, v := range filter {
		if _, isOp := v.(map[string]any); isOp {
			continue
		}
		doc[k] = v
	}
	return doc
}

// UpdateOne applies update to the first document matching filter. With
// opts.Upsert, it inserts a document built from filter merged with update
// when nothing matches.
func (c *Collection) UpdateOne(ctx context.Context, filter, update map[string]any, opts chronicle.UpdateOptions) (int, error) {
	where, args := filterClause(filter)
	query := fmt.Sprintf("SELECT rowid, doc FROM %s WHERE %s LIMIT 1", c.table, where)
	row := c.db.QueryRowContext(ctx, query, args...)
	var rowid int64
	var raw string
	err := row.Scan(&rowid, &raw)
	if err == sql.ErrNoRows {
		if !opts.Upsert {
			return 0, nil
		}
		merged := mergeDoc(docFromFilter(filter), update)
		return 1, c.InsertOne(ctx, merged)
	}
	if err != nil {
		return 0, fmt.Errorf("sqlitecollection: updateOne select: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return 0, fmt.Errorf("sqlitecollection: decode doc: %w", err)
	}
	merged := mergeDoc(doc, update)
	out, err := json.Marshal(merged)
	if err != nil {
		return 0, fmt.Errorf("sqlitecollection: encode doc: %w", err)
	}
	if _, err := c.db.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET doc = ? WHERE rowid = ?", c.table), string(out), rowid); err != nil {
		return 0, fmt.Errorf("sqlitecollection: update: %w", err)
	}
	return 1, nil
}

// UpdateMany applies update to every document matching filter.
func (c *Collection) UpdateMany(ctx context.Context, filter, update map[string]any) (int, error) {
	where, args := filterClause(filter)
	query := fmt.Sprintf("SELECT rowid, doc FROM %s WHERE %s", c.table, where)
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("sqlitecollection: updateMany select: %w", err)
	}
	type pending struct {
		rowid int64
		doc   map[string]any
	}
	var batch []pending
	for rows.Next() {
		var rowid int64
		var raw string
		if err := rows.Scan(&rowid, &raw); err != nil {
			rows.Close()
			return 0, fmt.Errorf("sqlitecollection: scan: %w", err)
		}
		var doc map[string]any
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			rows.Close()
			return 0, fmt.Errorf("sqlitecollection: decode doc: %w", err)
		}
		batch = append(batch, pending{rowid: rowid, doc: doc})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlitecollection: begin: %w", err)
	}
	defer tx.Rollback()
	for _, p := range batch {
		merged := mergeDoc(p.doc, update)
		out, err := json.Marshal(merged)
		if err != nil {
			return 0, fmt.Errorf("sqlitecollection: encode doc: %w", err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET doc = ? WHERE rowid = ?", c.table), string(out), p.rowid); err != nil {
			return 0, fmt.Errorf("sqlitecollection: update: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlitecollection: commit: %w", err)
	}
	return len(batch), nil
}

// DeleteOne removes the first document matching filter.
func (c *Collection) DeleteOne(ctx context.Context, filter map[string]any) (int, error) {
	where, args := filterClause(filter)
	query := fmt.Sprintf("DELETE FROM %s WHERE rowid IN (SELECT rowid FROM %s WHERE %s LIMIT 1)", c.table, c.table, where)
	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("sqlitecollection: deleteOne: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DeleteMany removes every document matching filter.
func (c *Collection) DeleteMany(ctx context.Context, filter map[string]any) (int, error) {
	where, args := filterClause(filter)
	query := fmt.Sprintf("DELETE FROM %s WHERE %s", c.table, where)
	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("sqlitecollection: deleteMany: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// FindOne returns the first document matching filter, or nil if none match.
func (c *Collection) FindOne(ctx context.Context, filter map[string]any, opts chronicle.FindOptions) (map[string]any, error) {
	docs, err := c.selectRows(ctx, filter, 1, orderClause(opts.Sort))
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return applyProjection(docs[0], opts.Projection), nil
}

// Find returns every document matching filter.
func (c *Collection) Find(ctx context.Context, filter map[string]any, opts chronicle.FindOptions) ([]map[string]any, error) {
	docs, err := c.selectRows(ctx, filter, opts.Limit, orderClause(opts.Sort))
	if err != nil {
		return nil, err
	}
	for i, d := range docs {
		docs[i] = applyProjection(d, opts.Projection)
	}
	return docs, nil
}

// CountDocuments counts documents matching filter.
func (c *Collection) CountDocuments(ctx context.Context, filter map[string]any) (int64, error) {
	where, args := filterClause(filter)
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", c.table, where)
	var n int64
	if err := c.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlitecollection: count: %w", err)
	}
	return n, nil
}

// CreateIndex creates a SQLite index over the JSON paths named by spec.Keys.
func (c *Collection) CreateIndex(ctx context.Context, spec chronicle.IndexSpec) error {
	fields := make([]string, 0, len(spec.Keys))
	for f := range spec.Keys {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	exprs := make([]string, 0, len(fields))
	for _, f := range fields {
		exprs = append(exprs, "json_extract(doc, "+jsonPath(f)+")")
	}

	name := spec.Name
	if name == "" {
		name = "idx_" + c.table + "_" + strings.Join(fields, "_")
	}
	name = sanitizeIdent(name)

	var b strings.Builder
	b.WriteString("CREATE ")
	if spec.Unique {
		b.WriteString("UNIQUE ")
	}
	b.WriteString("INDEX IF NOT EXISTS ")
	b.WriteString(name)
	b.WriteString(" ON ")
	b.WriteString(c.table)
	b.WriteString(" (")
	b.WriteString(strings.Join(exprs, ", "))
	b.WriteString(")")

	if len(spec.Partial) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(filterClauseLiteral(spec.Partial))
	}

	if _, err := c.db.ExecContext(ctx, b.String()); err != nil {
		return fmt.Errorf("sqlitecollection: create index %s: %w", name, err)
	}
	return nil
}
