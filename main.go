package main

import "github.com/dh1tw/audiosink/cmd"

func main() {
	cmd.Execute()
}
