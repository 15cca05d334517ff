// Package domain defines the network configuration records an operator
// manages: zones, NAS routers, firewall rules, MAC filters, IP pools,
// bandwidth profiles and per-plan device limits.
//
// Every kind shares a Record envelope (id, name, active flag, timestamps)
// and carries a kind-specific Spec that validates itself and renders its
// search text and CSV row.
package domain
