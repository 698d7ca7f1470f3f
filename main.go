// Package main is the entry point for the geofetch application
package main

import (
	"github.com/geofetch/geofetch/cmd"
)

func main() {
	cmd.Execute()
}
