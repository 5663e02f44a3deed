// Package process starts and owns relay worker subprocesses.
//
// A Launcher resolves the configured worker executable and starts it with a
// prepared argument vector:
//   - stdin is not connected
//   - stdout is drained and discarded
//   - stderr is connected to an os.Pipe whose read end is exposed by the Handle
//   - the worker runs in its own process group so a terminal Ctrl-C reaches the
//     supervisor first
//
// Spawn failures are returned as *SpawnError and are never retried.
//
// A Handle is reaped in the background as soon as the worker exits; Done is
// closed afterwards and ExitStatus reports the exit code, or the signal name
// when the worker was killed.
//
// Example:
//
//	launcher := process.NewLauncher("ffmpeg", logger)
//	h, err := launcher.Launch([]string{"-i", src, "-c", "copy", "-f", "flv", dst})
//	if err != nil {
//	    return err
//	}
//	go io.Copy(os.Stderr, h.Diagnostics())
//	<-h.Done()
package process
