package datasource

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/stratlab/backsim/internal/logger"
	"github.com/stratlab/backsim/internal/types"
	"github.com/stratlab/backsim/pkg/errors"
)

// DuckDBSource reads one instrument's bars out of a parquet archive through
// an embedded DuckDB instance. The parquet file is exposed as a view, so
// range queries push straight down into the columnar scan.
type DuckDBSource struct {
	db     *sql.DB
	symbol string
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
}

// NewDuckDBSource opens a DuckDB database at path (":memory:" works) and
// binds the source to one instrument. Call Initialize to attach the parquet
// archive before querying.
func NewDuckDBSource(path string, symbol string, l *logger.Logger) (*DuckDBSource, error) {
	if l == nil {
		l = logger.NewNopLogger()
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataSourceUnavailable, "failed to open duckdb", err)
	}

	if _, err := db.Exec(`SET threads=4;`); err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataSourceUnavailable, "failed to configure duckdb", err)
	}

	return &DuckDBSource{
		db:     db,
		symbol: symbol,
		logger: l,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}, nil
}

// Initialize points the bars view at a parquet file. The file must carry
// time, symbol, open, high, low, close and volume columns.
func (d *DuckDBSource) Initialize(parquetPath string) error {
	d.logger.Debug("initializing duckdb bar source", zap.String("path", parquetPath))

	if _, err := d.db.Exec(`DROP VIEW IF EXISTS bars;`); err != nil {
		return errors.Wrap(errors.ErrCodeDataSourceUnavailable, "failed to drop existing view", err)
	}

	// CREATE VIEW takes no placeholders, so the path is inlined.
	query := fmt.Sprintf(`CREATE VIEW bars AS SELECT * FROM read_parquet('%s');`, parquetPath)
	if _, err := d.db.Exec(query); err != nil {
		return errors.Wrap(errors.ErrCodeDataSourceUnavailable, "failed to create bars view", err)
	}

	return nil
}

// Symbol implements BarSource.
func (d *DuckDBSource) Symbol() string {
	return d.symbol
}

// Bounds implements BarSource.
func (d *DuckDBSource) Bounds() (time.Time, time.Time, error) {
	var first, last sql.NullTime

	query, args, err := d.sq.
		Select("MIN(time)", "MAX(time)").
		From("bars").
		Where(squirrel.Eq{"symbol": d.symbol}).
		ToSql()
	if err != nil {
		return time.Time{}, time.Time{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build bounds query", err)
	}

	if err := d.db.QueryRow(query, args...).Scan(&first, &last); err != nil {
		return time.Time{}, time.Time{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query bounds", err)
	}

	if !first.Valid || !last.Valid {
		return time.Time{}, time.Time{}, errors.Newf(errors.ErrCodeNoData, "no bars available for %s", d.symbol)
	}

	return first.Time, last.Time, nil
}

// Range implements BarSource.
func (d *DuckDBSource) Range(start time.Time, end time.Time) ([]types.Bar, error) {
	query, args, err := d.sq.
		Select("time", "symbol", "open", "high", "low", "close", "volume").
		From("bars").
		Where(squirrel.And{
			squirrel.Eq{"symbol": d.symbol},
			squirrel.GtOrEq{"time": start},
			squirrel.LtOrEq{"time": end},
		}).
		OrderBy("time ASC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build range query", err)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query bars", err)
	}
	defer rows.Close()

	bars := make([]types.Bar, 0, 1000)

	for rows.Next() {
		bar, err := scanBar(rows)
		if err != nil {
			return nil, err
		}

		bars = append(bars, bar)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "error iterating bars", err)
	}

	return bars, nil
}

// Stream implements BarSource with batched row consumption so arbitrarily
// large archives never materialize at once.
func (d *DuckDBSource) Stream(start optional.Option[time.Time], end optional.Option[time.Time]) func(yield func(types.Bar, error) bool) {
	const batchSize = 1000

	return func(yield func(types.Bar, error) bool) {
		builder := d.sq.
			Select("time", "symbol", "open", "high", "low", "close", "volume").
			From("bars").
			Where(squirrel.Eq{"symbol": d.symbol})

		if start.IsSome() {
			builder = builder.Where(squirrel.GtOrEq{"time": start.Unwrap()})
		}

		if end.IsSome() {
			builder = builder.Where(squirrel.LtOrEq{"time": end.Unwrap()})
		}

		query, args, err := builder.OrderBy("time ASC").ToSql()
		if err != nil {
			yield(types.Bar{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build stream query", err))

			return
		}

		rows, err := d.db.Query(query, args...)
		if err != nil {
			yield(types.Bar{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query bars", err))

			return
		}
		defer rows.Close()

		batch := make([]types.Bar, 0, batchSize)

		flush := func() bool {
			for _, bar := range batch {
				if !yield(bar, nil) {
					return false
				}
			}

			batch = batch[:0]

			return true
		}

		for rows.Next() {
			bar, err := scanBar(rows)
			if err != nil {
				yield(types.Bar{}, err)

				return
			}

			batch = append(batch, bar)

			if len(batch) >= batchSize && !flush() {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(types.Bar{}, errors.Wrap(errors.ErrCodeQueryFailed, "error iterating bars", err))

			return
		}

		flush()
	}
}

// Count implements BarSource.
func (d *DuckDBSource) Count(start optional.Option[time.Time], end optional.Option[time.Time]) (int, error) {
	builder := d.sq.
		Select("COUNT(*)").
		From("bars").
		Where(squirrel.Eq{"symbol": d.symbol})

	if start.IsSome() {
		builder = builder.Where(squirrel.GtOrEq{"time": start.Unwrap()})
	}

	if end.IsSome() {
		builder = builder.Where(squirrel.LtOrEq{"time": end.Unwrap()})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build count query", err)
	}

	var count int
	if err := d.db.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "failed to count bars", err)
	}

	return count, nil
}

// Close implements BarSource.
func (d *DuckDBSource) Close() error {
	if d.db != nil {
		return d.db.Close()
	}

	return nil
}

func scanBar(rows *sql.Rows) (types.Bar, error) {
	var (
		timestamp                      time.Time
		symbol                         string
		open, high, low, close, volume float64
	)

	if err := rows.Scan(&timestamp, &symbol, &open, &high, &low, &close, &volume); err != nil {
		return types.Bar{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan bar row", err)
	}

	return types.Bar{
		Symbol: symbol,
		Time:   timestamp,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  close,
		Volume: volume,
	}, nil
}
