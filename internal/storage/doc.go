// Package storage defines the persistence interfaces shared by the API and
// worker services.
//
// The sqlite subpackage implements them over a single database file so that
// multi-record flows (wallet debit, payment completion, plan activation) can
// share one transaction through Store.InTx.
//
// # Error Types
//
//   - ErrNotFound: a requested record is missing.
//   - CodeAlreadyExists domain errors: a unique key (plan name, username,
//     voucher code) was reused.
package storage
