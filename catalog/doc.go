// Package catalog models the portal's content (periods, the events inside a
// period, and the resource links attached to an event) and the Repository
// contract the HTTP layer reads and writes through.
//
// Lists are ordered newest first by creation time. Deleting a period deletes
// its events and their links; deleting an event deletes its links.
package catalog
