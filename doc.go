// Package rssm is a really small state machine: a generic client-side state
// container managing exactly one schema-typed value per named instance
// behind a closed CRUD-shaped action vocabulary.
//
// Validation is advisory by contract: schema mismatches are logged and the
// payload applied anyway, so schema drift between code and stored data can
// never crash or stall a consumer. Persistence is best-effort: create/read
// and destroy/reset hit the durable adapter synchronously, while update and
// flag changes coalesce through a debounced write that is flushed on Close.
package rssm
