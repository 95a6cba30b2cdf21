// Package dialog orchestrates a multi-turn exchange between a Driver, which decides what
// the user side says next, and a Model, which produces assistant replies.
//
// One round is one driver turn followed by one model turn. Recoverable driver failures
// are retried with exponential backoff, reset at the start of every round. Model
// failures end the exchange immediately because the model client already retries
// transient transport errors on its own.
//
//	orch, err := dialog.New(driver, model, dialog.DefaultConfig())
//	if err != nil { ... }
//	conv, err := orch.Run(ctx)
package dialog
