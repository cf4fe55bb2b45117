// Package testutil provides shared test helpers for goalboard.
//
// # Fixtures
//
// fixtures.go builds agent states and controller snapshots from the
// deterministic simulator, all anchored at Base:
//
//   - InitialState, StateAfter, TerminalState - agent states for a goal
//   - RunningSnapshot - a run one iteration in
//   - FinishedSnapshot - a finished run with its result
//
// # Environment Helpers
//
// env.go sets up project directories and JSON round trips:
//
//   - SetupTestDir(t) - temp dir with a .goalboard/config.yaml tuned for tests
//   - WriteTestFile(t, base, path, content) - writes a file in the test dir
//   - MustMarshalJSON, MustUnmarshalJSON - JSON helpers that fail the test
//
// # Assertions
//
//   - AssertLogsOrdered(t, logs) - timestamps never decrease
//   - AssertTaskProgress(t, st, completed, total) - task counts
//
// # Timeouts
//
// timeout.go derives contexts from the test deadline so hung streams fail
// the test instead of the whole binary.
package testutil
