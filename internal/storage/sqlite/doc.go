// Package sqlite implements storage.Store over a single SQLite database
// using the pure-Go modernc driver.
//
// All timestamps are stored as UTC unix milliseconds and money as integer
// minor units. Unique-key violations surface as CodeAlreadyExists domain
// errors carrying the offending column in metadata.
package sqlite
