// Package app runs accounting sessions reported by NAS devices: start,
// interim usage updates and stop, with plan, device and MAC checks applied
// at start.
package app
