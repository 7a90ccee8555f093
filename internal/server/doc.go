// Package server hosts the Fiber HTTP service, request middleware chain, and
// bin registry glue that resolves /cache/:bin requests to the configured
// static cache decorator. Diagnostics under /-/ bypass bin resolution so they
// keep working even when a bin is misconfigured.
package server
