// Package metrics defines the Prometheus collectors exported by pointwatch.
package metrics
