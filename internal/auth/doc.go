// Package auth issues and verifies the bearer tokens that guard the
// mutating routes of the HTTP API.
//
// It implements a 3-tier role model (viewer → operator → admin) with:
//   - HS256 JWT access tokens carrying the subject and role
//   - Static role-permission mapping (compile-time, no database lookup)
//
// Reads of the address space are open. Writing a variable or calling a
// method needs an operator token. Changing runtime parameters needs admin.
package auth
