// Package extension provides run-time registries for user supplied
// executors and their Go payload types.
//
// The registries are normally populated through the public APIs under the
// root flow package, therefore most applications do not need to import
// this package directly.
package extension
