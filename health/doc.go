// Package health probes resources and schedules recurring probes.
//
// A Checker performs one probe and never fails: every outcome, including a
// malformed address or a panic inside the probe, comes back as a
// HealthCheckResult with Healthy=false and a Reason.
//
// A Monitor runs one goroutine and ticker per resource id. The registry
// starts a loop when a resource is registered and stops it when the
// resource is removed; a stopped loop never calls its tick function again.
//
// Evaluate turns a health history into a status decision using a trailing
// window of consecutive results.
package health
