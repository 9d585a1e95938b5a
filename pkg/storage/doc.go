// Package storage owns atrium's SQL connection, schema migrations and Redis plumbing.
//
// # Databases
//
// Open connects to PostgreSQL (lib/pq) or SQLite (mattn/go-sqlite3). All queries in atrium are
// written once in the portable subset both understand: $n placeholders, TEXT ids, TIMESTAMP
// columns written through Timestamp, and ON CONFLICT upserts.
//
//	db, err := storage.Open(ctx, storage.Config{Driver: storage.DriverPostgres, URL: url})
//	err = storage.NewMigrator(db, logger).Up(ctx)
//
// TranslateError maps driver constraint violations onto the apperrors taxonomy, and WithTx
// runs a function in a transaction that rolls back on error or panic.
//
// # Redis
//
// NewRedisClient parses a redis:// URL and pings the server. RedisLeaser hands out SET NX
// leases so periodic jobs run on one replica at a time; LocalLeaser always grants.
package storage
