package main

import "github.com/opencampus/portal-crawler/cmd"

func main() {
	cmd.Execute()
}
