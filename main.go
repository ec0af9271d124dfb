package main

import "github.com/apideck-libraries/vault-core-sub000/cmd"

// Version can be set during build with -ldflags
var version = "dev"

func main() {
	cmd.SetVersion(version)
	cmd.Execute()
}
