// Package node composes one mesh node: a single-threaded event loop, the
// opcode dispatcher, the Asset and Tracker model handlers, their timers,
// the persistent store, metrics and the protocol log.
//
// Every model mutation runs on the loop goroutine. Inbound messages
// (Deliver), timer expirations and Do callbacks are queued onto the loop
// and run one at a time, so the models themselves need no locking.
//
//	n, err := node.New(cfg, bearer, store)
//	if err != nil { ... }
//	if err := n.Start(ctx); err != nil { ... }
//	defer n.Stop()
//	bearer.Start(n.Deliver)
package node
