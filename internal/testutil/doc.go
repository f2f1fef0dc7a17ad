// Package testutil provides shared test utilities for reachy-remix.
//
//   - FakeRobot: an in-memory robot.Robot that records writes
//   - SamplePose, SampleNod: pose fixtures
//   - SetupTestDir: a temp dir with a loopback, ephemeral-port config
//   - LaunchContext, ShortOperationContext: deadline-aware contexts
//   - AssertPositionsInDelta: pose comparison
package testutil
