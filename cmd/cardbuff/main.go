package main

import (
	"cardbuff/cmd/cardbuff/commands"
	"cardbuff/lib/osutil"
	"cardbuff/lib/telemetry"
)

func main() {
	ctx := osutil.SignalContext()
	telemetry.SetupFromEnv(ctx, "cardbuff")
	telemetry.InitSlog(true)
	defer telemetry.Shutdown(ctx)

	commands.ExecuteContext(ctx)
}
