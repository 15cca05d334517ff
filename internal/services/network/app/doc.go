// Package app manages network configuration records and pushes them to
// RouterOS. It also polls routers over SNMP and keeps their status current.
package app
