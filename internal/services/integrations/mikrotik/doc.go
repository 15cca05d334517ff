// Package mikrotik provisions hotspot users, PPP secrets and network
// configuration on a MikroTik router through the RouterOS API.
//
// Every operation opens its own API connection and closes it before
// returning. When no router is configured, NewGateway returns a Disabled
// gateway that logs and succeeds so billing flows keep working.
package mikrotik
