// Package tracing wraps OpenTelemetry span management behind small helpers
// so engine code never imports the upstream packages directly. All
// instrumentation is kept in a separate package so that applications which
// do not require tracing can exclude it from their build.
package tracing
