// Package version carries the build version stamp.
package version

// Version is overridden at build time with -ldflags. The default marks a
// build straight from source.
var Version = "dev"
