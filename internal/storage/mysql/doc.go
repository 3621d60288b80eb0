// Package mysql stores relay finalization records in MySQL. It owns the
// connection pool settings, the embedded schema migrations and the
// journal queries.
package mysql
