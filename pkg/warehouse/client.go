package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	vertigo "github.com/vertica/vertica-sql-go"
	"go.uber.org/zap"

	"github.com/adlake/adlake/pkg/batch"
	"github.com/adlake/adlake/pkg/errors"
	"github.com/adlake/adlake/pkg/logger"
	"github.com/adlake/adlake/pkg/pool"
)

// keyChunkSize bounds the tuple count per IN-list statement so key
// deletes and increment reads stay under the parser's expression limit.
const keyChunkSize = 500

// copyBlockSize is the block size handed to the driver's copy stream.
const copyBlockSize = 64 * 1024

// Config holds warehouse connection settings.
type Config struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Database string `yaml:"database" json:"database"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"password"`
	// Schema is the database schema holding the destination tables.
	Schema string `yaml:"schema" json:"schema"`
	// ConnectTimeout bounds connection establishment.
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
}

// Validate checks the connection settings.
func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.New(errors.ErrorTypeConfig, "warehouse host is required")
	}
	if c.Database == "" {
		return errors.New(errors.ErrorTypeConfig, "warehouse database is required")
	}
	if c.Schema == "" {
		return errors.New(errors.ErrorTypeConfig, "warehouse schema is required")
	}
	if c.Port == 0 {
		c.Port = 5433
	}
	return nil
}

// DSN renders the driver connection string.
func (c *Config) DSN() string {
	u := url.URL{
		Scheme: "vertica",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.Database,
	}
	return u.String()
}

// Client is the Vertica-backed implementation of Conn. One Client owns
// one database handle; a single load call is sequential on it.
type Client struct {
	db     *sql.DB
	schema string
	logger *zap.Logger
}

// Open connects to the warehouse and verifies the connection.
func Open(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("vertica", cfg.DSN())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to open warehouse connection")
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "warehouse ping failed")
	}

	return &Client{
		db:     db,
		schema: cfg.Schema,
		logger: logger.Named("warehouse"),
	}, nil
}

// Close releases the database handle.
func (c *Client) Close() error {
	return c.db.Close()
}

// quoteIdent quotes a SQL identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// qualify renders the schema-qualified, quoted table reference.
func (c *Client) qualify(table string) string {
	return quoteIdent(c.schema) + "." + quoteIdent(table)
}

// Schema implements Conn by reading the ordered column set from the
// system catalog.
func (c *Client) Schema(ctx context.Context, table string) (*TableSchema, error) {
	const q = `
		SELECT column_name, data_type, is_nullable
		FROM v_catalog.columns
		WHERE table_schema ILIKE ? AND table_name ILIKE ?
		ORDER BY ordinal_position`

	rows, err := c.db.QueryContext(ctx, q, c.schema, table)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCatalog, "catalog query failed").
			WithDetail("table", table)
	}
	defer rows.Close()

	schema := &TableSchema{Table: table}
	for rows.Next() {
		var (
			name     string
			dataType string
			nullable bool
		)
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeCatalog, "catalog row scan failed")
		}
		schema.Columns = append(schema.Columns, Column{
			Name:     batch.Canonical(name),
			Type:     mapDataType(dataType),
			Nullable: nullable,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCatalog, "catalog scan failed")
	}
	if len(schema.Columns) == 0 {
		return nil, errors.Newf(errors.ErrorTypeCatalog, "table %s.%s not found in catalog", c.schema, table)
	}
	return schema, nil
}

// mapDataType maps a catalog data_type string to a logical type.
func mapDataType(dataType string) LogicalType {
	t := strings.ToLower(dataType)
	switch {
	case strings.HasPrefix(t, "varchar"), strings.HasPrefix(t, "char"),
		strings.HasPrefix(t, "long varchar"), strings.HasPrefix(t, "uuid"):
		return TypeString
	case strings.HasPrefix(t, "int"), strings.HasPrefix(t, "bigint"),
		strings.HasPrefix(t, "smallint"), strings.HasPrefix(t, "tinyint"):
		return TypeInteger
	case strings.HasPrefix(t, "numeric"), strings.HasPrefix(t, "decimal"),
		strings.HasPrefix(t, "number"), strings.HasPrefix(t, "money"):
		return TypeDecimal
	case strings.HasPrefix(t, "float"), strings.HasPrefix(t, "double"),
		strings.HasPrefix(t, "real"):
		return TypeFloat
	case strings.HasPrefix(t, "timestamp"), strings.HasPrefix(t, "datetime"):
		return TypeTimestamp
	case strings.HasPrefix(t, "date"):
		return TypeDate
	case strings.HasPrefix(t, "bool"):
		return TypeBoolean
	default:
		return TypeString
	}
}

// DistinctKeys implements Conn. The scan is windowed when a window is
// given; scanning an entire destination per load is unaffordable at
// warehouse scale.
func (c *Client) DistinctKeys(ctx context.Context, table string, columns []string, w *Window) (*KeySet, error) {
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = quoteIdent(col)
	}

	var sb strings.Builder
	sb.WriteString("SELECT DISTINCT ")
	sb.WriteString(strings.Join(quoted, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(c.qualify(table))

	var args []interface{}
	if w != nil {
		sb.WriteString(" WHERE ")
		sb.WriteString(quoteIdent(w.Column))
		sb.WriteString(" BETWEEN ? AND ?")
		args = append(args, w.Min.Format(batch.DateLayout), w.Max.Format(batch.DateLayout))
	}

	rows, err := c.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeExclusion, "exclusion query failed").
			WithDetail("table", table)
	}
	defer rows.Close()

	set := NewKeySet(columns)
	dest := make([]interface{}, len(columns))
	cells := make([]interface{}, len(columns))
	for i := range cells {
		dest[i] = &cells[i]
	}

	values := pool.StringSlicePool.Get()
	defer pool.StringSlicePool.Put(values[:0])

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeExclusion, "exclusion row scan failed")
		}
		values = values[:0]
		for _, cell := range cells {
			values = append(values, formatScanned(cell))
		}
		set.Add(values)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeExclusion, "exclusion scan failed")
	}

	c.logger.Debug("distinct key scan complete",
		zap.String("table", table),
		zap.Strings("columns", columns),
		zap.Int("tuples", set.Len()))
	return set, nil
}

// ExistingIncrements implements Conn with chunked tuple-IN lookups.
func (c *Client) ExistingIncrements(ctx context.Context, table string, pkCols, incCols []string, keys [][]interface{}) (map[string][]float64, error) {
	existing := make(map[string][]float64, len(keys))

	selectCols := make([]string, 0, len(pkCols)+len(incCols))
	for _, col := range pkCols {
		selectCols = append(selectCols, quoteIdent(col))
	}
	for _, col := range incCols {
		selectCols = append(selectCols, quoteIdent(col))
	}

	for start := 0; start < len(keys); start += keyChunkSize {
		end := start + keyChunkSize
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[start:end]

		where, args := tupleInClause(pkCols, chunk)
		q := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
			strings.Join(selectCols, ", "), c.qualify(table), where)

		rows, err := c.db.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, "increment state query failed").
				WithDetail("table", table)
		}

		if err := scanIncrementRows(rows, pkCols, incCols, existing); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return existing, nil
}

func scanIncrementRows(rows *sql.Rows, pkCols, incCols []string, out map[string][]float64) error {
	pkCells := make([]interface{}, len(pkCols))
	incCells := make([]sql.NullFloat64, len(incCols))
	dest := make([]interface{}, 0, len(pkCols)+len(incCols))
	for i := range pkCells {
		dest = append(dest, &pkCells[i])
	}
	for i := range incCells {
		dest = append(dest, &incCells[i])
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return errors.Wrap(err, errors.ErrorTypeQuery, "increment row scan failed")
		}
		pkValues := make([]string, len(pkCells))
		for i, cell := range pkCells {
			pkValues[i] = normalizeScanned(cell)
		}
		sums := make([]float64, len(incCells))
		for i, cell := range incCells {
			if cell.Valid {
				sums[i] = cell.Float64
			}
		}
		out[batch.TupleKeyValues(pkValues)] = sums
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "increment scan failed")
	}
	return nil
}

// formatScanned renders a driver-scanned cell in the batch-side
// canonical key form.
func formatScanned(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return batch.NullKeyMarker
	case []byte:
		return batch.NormalizeKey(string(x))
	case string:
		return batch.NormalizeKey(x)
	default:
		return batch.KeyFormat(x)
	}
}

// normalizeScanned is formatScanned without the NULL marker; a NULL
// primary-key cell cannot match any batch tuple anyway.
func normalizeScanned(v interface{}) string {
	s := formatScanned(v)
	if s == batch.NullKeyMarker {
		return ""
	}
	return s
}

// tupleInClause renders "(k1, k2) IN ((?, ?), ...)" with its arguments.
func tupleInClause(cols []string, keys [][]interface{}) (string, []interface{}) {
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = quoteIdent(col)
	}
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"

	var sb strings.Builder
	args := make([]interface{}, 0, len(keys)*len(cols))
	if len(cols) == 1 {
		sb.WriteString(quoted[0])
		placeholder = "?"
	} else {
		sb.WriteString("(" + strings.Join(quoted, ", ") + ")")
	}
	sb.WriteString(" IN (")
	for i, key := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(placeholder)
		for _, v := range key {
			args = append(args, keyArg(v))
		}
	}
	sb.WriteString(")")
	return sb.String(), args
}

// keyArg renders a cell value as a driver argument.
func keyArg(v interface{}) interface{} {
	if batch.IsNull(v) {
		return nil
	}
	return batch.Format(v)
}

// Begin implements Conn.
func (c *Client) Begin(ctx context.Context) (Tx, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to begin transaction")
	}
	return &clientTx{tx: tx, client: c}, nil
}

// clientTx implements Tx over one open database transaction.
type clientTx struct {
	tx     *sql.Tx
	client *Client
}

// CopyFrom encodes the rows into the delimited wire format and submits
// them as one bulk-ingest command. ABORT ON ERROR rejects the whole
// batch on any malformed record; NO COMMIT keeps the ingest inside the
// surrounding transaction.
func (t *clientTx) CopyFrom(ctx context.Context, table string, columns []string, rows []batch.Row) (int64, error) {
	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	if err := EncodeRows(buf, rows); err != nil {
		return 0, err
	}

	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = quoteIdent(col)
	}
	copySQL := fmt.Sprintf(
		"COPY %s (%s) FROM STDIN DELIMITER '|' NULL '%s' ABORT ON ERROR NO COMMIT",
		t.client.qualify(table), strings.Join(quoted, ", "), NullToken)

	vCtx := vertigo.NewVerticaContext(ctx)
	if err := vCtx.SetCopyInputStream(strings.NewReader(buf.String())); err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeBulkCommit, "failed to attach copy stream")
	}
	if err := vCtx.SetCopyBlockSizeBytes(copyBlockSize); err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeBulkCommit, "failed to set copy block size")
	}

	res, err := t.tx.ExecContext(vCtx, copySQL)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeBulkCommit, "bulk ingest rejected").
			WithDetail("table", table).
			WithDetail("rows", len(rows))
	}

	loaded, err := res.RowsAffected()
	if err != nil {
		// The driver reported success; fall back to the batch size.
		loaded = int64(len(rows))
	}
	return loaded, nil
}

// Truncate implements Tx.
func (t *clientTx) Truncate(ctx context.Context, table string) error {
	if _, err := t.tx.ExecContext(ctx, "TRUNCATE TABLE "+t.client.qualify(table)); err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "truncate failed").
			WithDetail("table", table)
	}
	return nil
}

// DeleteKeys implements Tx with chunked tuple-IN deletes.
func (t *clientTx) DeleteKeys(ctx context.Context, table string, keyCols []string, keys [][]interface{}) (int64, error) {
	var deleted int64
	for start := 0; start < len(keys); start += keyChunkSize {
		end := start + keyChunkSize
		if end > len(keys) {
			end = len(keys)
		}
		where, args := tupleInClause(keyCols, keys[start:end])
		res, err := t.tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE %s", t.client.qualify(table), where), args...)
		if err != nil {
			return deleted, errors.Wrap(err, errors.ErrorTypeQuery, "keyed delete failed").
				WithDetail("table", table)
		}
		if n, err := res.RowsAffected(); err == nil {
			deleted += n
		}
	}
	return deleted, nil
}

// DeleteBefore implements Tx.
func (t *clientTx) DeleteBefore(ctx context.Context, table string, column string, cutoff time.Time) (int64, error) {
	res, err := t.tx.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE %s < ?", t.client.qualify(table), quoteIdent(column)),
		cutoff.Format(batch.DateLayout))
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeQuery, "windowed delete failed").
			WithDetail("table", table).
			WithDetail("column", column)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ApplyIncrement implements Tx.
func (t *clientTx) ApplyIncrement(ctx context.Context, table string, pkCols []string, pkVals []interface{}, incCols []string, sums []float64) error {
	sets := make([]string, len(incCols))
	args := make([]interface{}, 0, len(incCols)+len(pkCols))
	for i, col := range incCols {
		sets[i] = quoteIdent(col) + " = ?"
		args = append(args, sums[i])
	}
	wheres := make([]string, len(pkCols))
	for i, col := range pkCols {
		wheres[i] = quoteIdent(col) + " = ?"
		args = append(args, keyArg(pkVals[i]))
	}

	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		t.client.qualify(table), strings.Join(sets, ", "), strings.Join(wheres, " AND "))
	if _, err := t.tx.ExecContext(ctx, q, args...); err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "increment update failed").
			WithDetail("table", table)
	}
	return nil
}

// Commit implements Tx.
func (t *clientTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeBulkCommit, "commit failed")
	}
	return nil
}

// Rollback implements Tx.
func (t *clientTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return errors.Wrap(err, errors.ErrorTypeConnection, "rollback failed")
	}
	return nil
}
