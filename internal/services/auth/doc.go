// Package auth defines who may use the operator console and the customer API.
//
// Subpackages:
//   - user: operators and subscribers, roles, statuses and password rules
//   - token: HS256 access and refresh tokens
//   - app: registration, sign-in, refresh, profile and admin user management
package auth
