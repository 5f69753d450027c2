package main

import "github.com/rss-r/deploy/cmd/rss-r-deploy/cmd"

func main() {
	cmd.Execute()
}
