package main

import "capsule-backend/cmd"

func main() {
	cmd.Run()
}
