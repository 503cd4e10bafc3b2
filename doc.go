// Package provisioning creates, updates, deletes, blocks and re-invites admin
// accounts that exist both in an identity store (credentials, roles, security
// stamps) and in a domain store (scope, deputy flag, managed workshops), and
// records a field level change log for audited operations.
//
// Operations:
//   - Orchestrator runs every operation as one unit of work. Identity and
//     domain writes share a bun transaction, registered compensations run on
//     failure, and transient faults re-run the whole core with backoff.
//   - For(role) returns an AdminProvisioner bound to one admin role. Results
//     come back as a Response envelope, never as a bare error.
//   - BlockByProvider blocks or unblocks every provider admin and employee of
//     a provider, leaving manual blocks alone when unblocking.
//
// Change log:
//   - RoleSettings select the tracked properties and audited operations per
//     role. Rows are written after the operation commits and a failure to
//     write them is logged, it never undoes the operation.
//
// Invitations:
//   - InvitationDispatcher renders the invitation email with a fresh password
//     and confirmation link. In outbox mode the rendered message is stored in
//     the same transaction and OutboxWorker delivers it after commit.
//
// Activity sinks:
//   - ActivitySink receives one event per committed operation. Sinks run best
//     effort, errors are logged.
package provisioning
