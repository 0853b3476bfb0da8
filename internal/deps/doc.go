// Package deps validates the external binaries and reference databases a
// run depends on before any item is processed.
package deps
