package main

import "github.com/ValentinKolb/gombus/cmd"

func main() {
	cmd.Execute()
}
