package main

import (
	"github.com/cyqual-sec/aws-delete-default-vpc/cmd"
)

func main() {
	cmd.Execute()
}
