package main

import "campusgrid/internal/server"

func main() {
	server.StartGinServer()
}
