package main

import "github.com/devops-sunny/turbofetch/internal/cli"

func main() {
	cli.Execute()
}
