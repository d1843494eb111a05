// Package transport connects windows to the holder.
//
// Every window talks to the holder through the Transport interface:
// request/response for commands, and publish/subscribe for push events.
// Two implementations are provided:
//
//   - Hub and Endpoint, an in-process bus. Each window gets its own
//     Endpoint; messages are still CBOR encoded so the in-process and
//     stream paths exercise the same codec.
//   - Server and Client, the same protocol over a stream connection
//     (a unix socket in practice), so a window can live in another
//     process.
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│  Request / Response / Event    │
//	├────────────────────────────────┤
//	│      CBOR (pkg/wire)           │
//	├────────────────────────────────┤
//	│   Length-Prefix Framing (4B)   │
//	├────────────────────────────────┤
//	│   unix socket / net.Conn       │
//	└────────────────────────────────┘
//
// # Delivery
//
// Push events for one Endpoint or Client are delivered on a single
// goroutine, in the order they were broadcast. A handler may issue
// requests; it never runs concurrently with another handler of the same
// Endpoint.
package transport
