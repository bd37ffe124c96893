// Package services provides the shared error taxonomy and context helpers
// used by stage adapters and the external service clients.
package services
