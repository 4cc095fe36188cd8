package main

import "media-janitor/cmd"

func main() {
	cmd.Execute()
}
