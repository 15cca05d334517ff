// Package domain holds the billing records of the operator: plans and their
// activations, payments, vouchers, router access accounts, invoices and
// auto-billing subscriptions.
//
// Types here validate themselves and compute derived values; persistence and
// side effects live in the billing service.
package domain
