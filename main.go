package main

import "github.com/mpapenbr/telemetry-merger/cmd"

func main() {
	cmd.Execute()
}
