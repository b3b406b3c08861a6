package main

import "agenda_backend/internal/app"

func main() {
	app.Run()
}
