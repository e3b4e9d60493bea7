package main

import (
	"github.com/fleetstake/fleetstake/cli"
)

// AppName is the application name
var AppName = "Fleet-Node"

// Version is the app version
var Version = "latest"

func main() {
	cli.Execute(AppName, Version)
}
