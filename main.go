package main

import "campus-social-backend/cmd"

func main() {
	cmd.Run()
}
