// Package timeouts defines shared timeout constants used across binaries.
package timeouts

import "time"

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long servers wait for in-flight requests during
// graceful shutdown.
const Shutdown = 5 * time.Second

// RouterDial caps the wait when connecting to a RouterOS API endpoint.
const RouterDial = 5 * time.Second

// Gateway caps a single outbound payment gateway request.
const Gateway = 30 * time.Second

// SNMP caps a single SNMP poll of one router.
const SNMP = 3 * time.Second

// Ping caps readiness probes against the database and Redis.
const Ping = 2 * time.Second

// HealthProbe caps a -healthcheck run against a local gRPC health listener.
const HealthProbe = 5 * time.Second
