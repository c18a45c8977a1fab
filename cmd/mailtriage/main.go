package main

import "github.com/nhle/mail-triage/internal/cli"

func main() {
	cli.Execute()
}
