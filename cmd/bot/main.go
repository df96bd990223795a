package main

import "ussbot/internal/app"

func main() {
	app.Run()
}
