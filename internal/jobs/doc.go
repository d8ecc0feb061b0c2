// Package jobs defines the domain types, collaborator interfaces and error
// taxonomy shared by the ingest pipeline and its adapters.
package jobs
