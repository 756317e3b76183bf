// Package params persists the server's runtime parameters in a bbolt file.
//
// Two parameters exist:
//   - LogLevel: 0 (debug) to 4 (critical); applied immediately through
//     OnChange callbacks
//   - Port: 1 to 65535; the UA endpoint port, applied at the next start
//
// Values are validated on Set and stored as decimal text in the "params"
// bucket. Unset parameters read as their defaults.
package params
