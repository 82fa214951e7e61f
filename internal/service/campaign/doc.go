// Package campaign implements campaign authoring and the run lifecycle.
//
// Launching a campaign normalizes its stored segment, resolves the audience
// into a SQL fragment (rejecting unsupported types before any write), and
// hands the fragment to a Materializer that creates the run and its
// targets in one transaction. The dispatcher is notified only after the
// transaction commits.
//
// Repository implementations live in repository/postgres/.
package campaign
