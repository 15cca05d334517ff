// Package user defines operator console and subscriber identities.
//
// Usernames, emails and phone numbers are normalized and validated here before
// they are persisted or provisioned as router credentials.
package user
