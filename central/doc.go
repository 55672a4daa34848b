// Package central bridges a callback-driven BLE central manager into blocking,
// context-cancellable calls and lazy scan sequences.
//
// The manager publishes raw events onto a Bus. Subscriptions on the bus feed
// two kinds of bridge:
//   - one-shot calls (WaitUntilReady, Connect, CancelConnection) backed by a
//     single-resolution Waiter;
//   - Scan, an iter.Seq that starts a scan when ranged and stops it exactly once
//     however the range ends.
//
// Cancellation is driven by context.Context. When a cancellation races a real
// completion, whichever reaches the Waiter first wins and the other is ignored.
package central
