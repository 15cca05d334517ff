// Package app implements account registration, sign-in, token rotation and
// super-admin account management on top of the shared store.
package app
