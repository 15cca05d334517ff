// Package app implements plans, purchases, wallets, vouchers, router access
// accounts, invoices and auto-billing.
//
// Router provisioning happens after the database commit. A router failure is
// logged and never rolls back a payment the customer has already made.
package app
