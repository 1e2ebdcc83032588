package postgres

// SQL queries for the accounting and lastcheck tables.

const (
	// queryInsertRecord inserts a record keyed by record_id.
	// ON CONFLICT DO NOTHING returns no rows (sql.ErrNoRows) for duplicates.
	queryInsertRecord = `
		INSERT INTO accounting (
			record_id, meta, components, start_time, stop_time, runtime
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (record_id) DO NOTHING
		RETURNING record_id
	`

	// queryInsertRecordSkipDuplicate is the batch variant: duplicates are
	// silently skipped so a replayed batch collapses into a no-op.
	queryInsertRecordSkipDuplicate = `
		INSERT INTO accounting (
			record_id, meta, components, start_time, stop_time, runtime
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (record_id) DO NOTHING
	`

	// querySelectRecordForUpdate locks one row for the read-modify-write
	// cycle of Update.
	querySelectRecordForUpdate = `
		SELECT record_id, meta, components, start_time, stop_time, runtime
		FROM accounting
		WHERE record_id = $1
		FOR UPDATE
	`

	queryUpdateRecord = `
		UPDATE accounting
		SET meta = $2, components = $3, start_time = $4, stop_time = $5, runtime = $6
		WHERE record_id = $1
	`

	queryGetOneRecord = `
		SELECT record_id, meta, components, start_time, stop_time, runtime
		FROM accounting
		WHERE record_id = $1
	`

	// querySelectRecords is the base listing query; GetAll appends WHERE
	// and ORDER BY clauses built from the request.
	querySelectRecords = `
		SELECT record_id, meta, components, start_time, stop_time, runtime
		FROM accounting
	`

	queryGetLastCheck = `SELECT ts FROM lastcheck WHERE collector_id = $1`

	querySetLastCheck = `
		INSERT INTO lastcheck (collector_id, ts)
		VALUES ($1, $2)
		ON CONFLICT (collector_id) DO UPDATE SET ts = EXCLUDED.ts
	`
)
