// Package migration moves one hosted site between panel servers.
//
// An Orchestrator walks a fixed sequence of states. Validate and
// DiscoverDatabase resolve a Plan from the Request and from the CMS
// configuration found under the site's document root; the remaining states
// provision the destination panel, pipe the database and document root to the
// destination through execshell, rewrite the CMS credentials, and stop at
// manual checkpoints that an operator (or an automatic Checkpointer) must
// acknowledge. The first failing state ends the run; ExitCode maps the
// resulting error to the process exit status.
package migration
