// Package sqldb opens the relational store shared by the task state store and
// the transaction ledger. It supports MySQL, SQLite and PostgreSQL, rebinds
// placeholders per dialect and applies the embedded schema migrations.
package sqldb
