// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// Proxy descriptors may be given inline (proxies:) or in a newline-delimited file
// (proxy_file:); both lists are combined in order.
package config
