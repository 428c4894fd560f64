// Package cli implements the mocklane command line: serve, validate, logs
// and version, built on cobra.
package cli
