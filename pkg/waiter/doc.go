// Package waiter resolves a future on the next push of a named event.
//
// A Pending registers one handler when created and removes it as soon as
// the first matching push arrives, when it is cancelled, or when the
// context given to Result ends. It never resolves twice.
//
//	p := waiter.Await(endpoint, model.SaveFilePath.ChangeEvent())
//	defer p.Cancel()
//	openSaveDialog()
//	raw, err := p.Result(ctx)
package waiter
