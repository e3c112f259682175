// Package process launches and supervises debug target processes.
//
// A Launcher spawns the target runtime as a child process with a working
// directory and argument list, without shell interpretation, and tracks it
// until it exits:
//
//	launcher := process.NewLauncher(process.WithTerminateTimeout(5 * time.Second))
//	defer launcher.Shutdown(5 * time.Second)
//
//	proc, err := launcher.Launch(ctx, process.Spec{
//	    Path: "/opt/moai/bin/moai-lua",
//	    Dir:  projectRoot,
//	    Args: []string{"Main.lua"},
//	})
//	if err != nil {
//	    var launchErr *process.LaunchError
//	    errors.As(err, &launchErr)
//	    ...
//	}
//
//	<-proc.Done()
//	fmt.Printf("Exit code: %d\n", proc.ExitCode())
//
// # Exit detection
//
// Each Process exposes a Done channel closed exactly once when the process
// exits, whatever caused the exit. Terminate is idempotent and bounded by a
// timeout, so a wedged child never blocks the caller indefinitely.
//
// # Thread Safety
//
// Both Launcher and Process are safe for concurrent use.
package process
