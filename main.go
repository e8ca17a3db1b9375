package main

import "laser-vision-backend/cmd"

func main() {
	cmd.Run()
}
