// Package hostenv is a small host environment for bridge guests: a
// console, a window with a frame loop, and event targets with keyboard
// events.
//
// Asynchronous host APIs are modelled as callbacks the host invokes later.
// RequestFrame queues a closure for the next RunFrame; listeners run when
// the embedder calls Dispatch. Both hold their own reference on the
// closure, so a guest that forgets a listener keeps it alive and a guest
// that drops one does not destroy it while the host still holds it.
package hostenv
