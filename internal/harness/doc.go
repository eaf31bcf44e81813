// Package harness drives the trusted interpreter that executes target
// binaries.
//
// The interpreter is invoked as
//
//	<harness> <target-binary-path>
//
// with a case's fixture bytes as its entire standard input. Standard
// output, standard error and the exit status are captured once the
// process terminates. The driver does not interpret any of them; the
// check package compares results against expectations.
//
// # Exit codes
//
// A process that exits normally reports its exit status. A process killed
// by a signal reports the negated signal number (for example -9 for
// SIGKILL), so a spec can expect a crash explicitly.
//
// # Timeouts
//
// By default a case may run forever. Setting Driver.Timeout bounds each
// invocation; on expiry the process is killed and Result.TimedOut is set.
package harness
