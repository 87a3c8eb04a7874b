package main

import (
	"setbull_trader/cmd/scanner/app"
	"setbull_trader/pkg/log"
)

func main() {
	log.InitLogger()

	a := app.NewApp()
	if err := a.Run(); err != nil {
		log.Fatal("scanner: fatal error: %v", err)
	}
}
