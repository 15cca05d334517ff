// Package app answers the dashboard and report queries: sales, data usage,
// top spenders, failed logins, session logs and router health.
package app
