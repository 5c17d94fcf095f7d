// Package execshell runs external shell pipelines for site migrations.
//
// A Pipeline is a list of stages rendered into one /bin/bash command line with
// shell-quoted arguments. SecureProcessRunner executes it directly through
// os/exec when no secret is needed, or under a pseudo-terminal when a remote
// stage will prompt for a password, answering the prompt from PromptResponse
// values so the secret never appears in argv, the environment, or the returned
// transcript.
package execshell
