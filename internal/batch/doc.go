// Package batch drives the fetch, process, record loop over a manifest of
// work items, one item at a time. It owns every tracker transition and
// progress row; one bad item never stops the items after it.
package batch
