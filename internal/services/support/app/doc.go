// Package app serves the help center, support tickets and the system status
// page.
package app
