package main

import "github.com/MeKo-Tech/osmtile/internal/cmd"

func main() {
	cmd.Execute()
}
