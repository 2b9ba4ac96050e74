// Package services wires the application's components into a single
// registry so entry points depend on one constructor instead of each
// component's wiring details.
package services
