// Package engine implements the bank server's request pipeline.
//
// The engine accepts text commands, assigns each a request id, queues it,
// and runs it on a fixed pool of workers against a ledger.Store.
//
// ARCHITECTURE:
//
// Request flow:
//  1. Submit parses a line (CHECK, TRANS or END) and rejects malformed input
//     before it consumes an id.
//  2. The RequestQueue assigns the next id and arrival time under its lock
//     and appends the request.
//  3. A worker takes the front request, locks every account it touches in
//     ascending id order, executes it, and unlocks.
//  4. The Result (status, start, end) goes to the Recorder, usually the
//     audit log.
//
// END closes intake. Workers keep taking until the queue is empty, then
// exit; Wait returns once every accepted request has a result.
//
// Ordering guarantees:
//
// Ids are strictly increasing in submission order and dequeue order.
// Completion order across workers is unspecified, so result records can
// appear out of id order.
//
// TRANS is all-or-nothing. Running balances are checked in command order,
// and nothing is written if any of them would go negative or overflow.
package engine
