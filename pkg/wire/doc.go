// Package wire defines the CBOR wire format exchanged between the session
// state holder and its windows.
//
// Every message is a CBOR map with integer keys. Key 2 carries the message
// kind so a stream reader can dispatch a frame without decoding it fully.
//
// # Message Kinds
//
//   - Request: window to holder, carries a command name and payload
//   - Response: holder to window, correlated by message id
//   - Event: holder to windows, an unsolicited push (message id 0)
//   - Control: window to holder, subscribe/unsubscribe to an event name
//
// # Nullable Values
//
// Field payloads are carried as raw CBOR so the receiving side decides the
// concrete type. A CBOR null clears a nullable field.
package wire
