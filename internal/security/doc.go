// Package security derives a read-only posture report from engine settings:
// which protections are active and which valid settings weaken a deployment.
//
// # What this package must NOT do
//
//   - Read live state. The report reflects configuration only.
package security
