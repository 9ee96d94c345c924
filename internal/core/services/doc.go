// Package services holds the retrieval pipeline and the services behind
// the driving ports: indexing (chunk, embed, store), retrieval with
// confidence scoring, prompt assembly with answer synthesis, document
// lifecycle and settings.
//
// Collaborators are reached only through driven ports. Every failure that
// leaves Query or IndexDocument is a *domain.PipelineError.
package services
