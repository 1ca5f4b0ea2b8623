// Package core implements the mailbox actor used to give shared state a
// single owner.
//
// An Actor drains its mailbox on one goroutine, so a MessageHandler never
// runs concurrently with itself. Callers either fire-and-forget with Send or
// wait for the handler's result with Call.
package core
