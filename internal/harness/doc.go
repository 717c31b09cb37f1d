// Package harness drives the bank engine from the outside and checks what
// comes back.
//
// It has three parts:
//
//   - Scenarios: small YAML command scripts run against a fresh engine,
//     compared line by line and against golden transcripts.
//   - Workloads: reproducible three-phase command streams (deposits,
//     random transfers, checks) with their expected final balances.
//   - Verification: a checker for audit logs written by a live server.
//
// # Scenario Format
//
//	name: deposit_isf_check
//	description: "What this scenario validates"
//	accounts: 3
//	workers: 1
//	lock_mode: fine
//	sequential: true
//	commands:
//	  - TRANS 1 100
//	  - CHECK 1
//	expect:
//	  - 1 OK
//	  - 2 BAL 100
//	rejects:
//	  - { line: "TRANS 1", code: ARITY }
//	balances: [100, 0, 0]
//
// Expected lines omit the TIME suffix. Result ids must always be exactly
// 1..N for the N accepted lines, whether or not expect is given.
//
// # Golden Transcripts
//
// Transcript renders results, rejects and balances without wall-clock
// times, so the same scenario always produces the same bytes. Regenerate
// with:
//
//	go test ./internal/harness -update
package harness
