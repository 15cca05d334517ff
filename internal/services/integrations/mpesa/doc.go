// Package mpesa is a client for the Safaricom Daraja STK push API: OAuth
// tokens, payment prompts, status queries and callback parsing.
package mpesa
