// Package stages implements the pipeline's stage adapters. Capture, meta,
// claims, and publish wrap external collaborators (browser capture service,
// structured-output AI service, CMS ingest endpoint) behind narrow
// interfaces; reduce and merge are pure document transforms.
package stages
