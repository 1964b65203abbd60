// Package query answers filtered, sorted and paginated task listings in two
// phases.
//
// Phase one asks an in-memory bleve index for the ordered identifiers of one
// page and the total number of matches. Phase two hydrates those
// identifiers from the task store, keeping phase-one order and dropping any
// task deleted in between. The index is rebuilt from the store on start and
// kept current by the service after every committed mutation.
//
// Sortable fields are a fixed table (see SortFields); an unknown or blank
// field falls back to newest first. Free text matches the stemmed tokens of
// title and description, all tokens required.
package query
