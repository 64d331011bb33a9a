package main

import "swvanews/cmd/handlers"

func main() {
	handlers.Execute()
}
