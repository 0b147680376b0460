// Package github provides the guarded GitHub API layer for org-infra.
// All remote traffic flows through a gateway that validates every
// (endpoint, method) pair against a fixed allow-list before any network
// I/O, and surfaces every outcome as a uniform (status, body) result.
//
// The package includes:
// - Gateway for allow-listed raw API calls
// - Ops for identity, fork lifecycle, pull request and branch operations
// - Forge interface consumed by the sync engine
package github
