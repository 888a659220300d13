package main

import (
	"os"

	"github.com/chueng/site-admin/app"
)

func main() {
	err := app.Execute()
	if err != nil {
		os.Exit(1)
	}
}
