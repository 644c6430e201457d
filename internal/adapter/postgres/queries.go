package postgres

// queryTableColumns fetches the ordered column list for a table.
// $1 = schema, $2 = table_name.
const queryTableColumns = `
	SELECT c.column_name
	FROM information_schema.columns c
	WHERE c.table_schema = $1 AND c.table_name = $2
	ORDER BY c.ordinal_position`

// queryServerVersion fetches the numeric server version (e.g. 180001).
const queryServerVersion = `SELECT current_setting('server_version_num')::int AS version_num`

// queryCreateAuditTable lazily creates the persisted audit schema.
// Serialized mappings (params, images, custom properties) are JSONB.
const queryCreateAuditTable = `
	CREATE TABLE IF NOT EXISTS rowtrail_audit_log (
		id                BIGSERIAL PRIMARY KEY,
		occurred_at       TIMESTAMPTZ NOT NULL,
		event_name        TEXT NOT NULL,
		query_text        TEXT NOT NULL,
		query_params      JSONB,
		before_image      JSONB,
		after_image       JSONB,
		table_name        TEXT NOT NULL,
		operation         TEXT NOT NULL,
		actor_id          TEXT,
		actor_name        TEXT,
		actor_address     TEXT,
		actor_agent       TEXT,
		host_name         TEXT,
		process_id        INTEGER,
		thread_id         BIGINT,
		custom_properties JSONB,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	)`

// queryInsertAuditRecord writes one finished audit record.
const queryInsertAuditRecord = `
	INSERT INTO rowtrail_audit_log (
		occurred_at, event_name, query_text, query_params,
		before_image, after_image, table_name, operation,
		actor_id, actor_name, actor_address, actor_agent,
		host_name, process_id, thread_id, custom_properties
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
