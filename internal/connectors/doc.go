// Package connectors feeds documents into the index from outside sources.
// The filesystem connector watches a local inbox directory.
package connectors
