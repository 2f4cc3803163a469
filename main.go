package main

import "github.com/joshdurbin/strava-goals/internal/cmd"

func main() {
	cmd.Execute()
}
