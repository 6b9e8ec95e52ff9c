package main

import (
	"github.com/mchmarny/vcpulse/pkg/cli"
)

func main() {
	cli.Execute()
}
