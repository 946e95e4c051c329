/*
This is an example of application that will use the
engine package to test things out
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/spark/engine"
	"github.com/spaghettifunk/spark/engine/core"
	"github.com/spaghettifunk/spark/testbed"
)

func main() {
	configPath := flag.String("config", "", "path of the TOML configuration")
	frames := flag.Uint64("frames", 120, "frames to run, 0 runs until interrupted")
	flag.Parse()

	tb, err := testbed.NewTestGame(*configPath, *frames)
	if err != nil {
		panic(err)
	}

	e, err := engine.New(tb.Game)
	if err != nil {
		panic(err)
	}

	if err := e.Initialize(); err != nil {
		panic(err)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	// stop the frame loop on sigterm and other system calls
	go func() {
		<-sigCh
		core.EventFire(core.EVENT_CODE_APPLICATION_QUIT, nil, core.EventContext{})
	}()

	// run engine
	runErr := e.Run()
	if err := e.Shutdown(); err != nil {
		core.LogError("shutdown: %s", err.Error())
	}
	if runErr != nil {
		panic(runErr)
	}
}
