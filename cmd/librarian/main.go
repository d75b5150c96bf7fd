package main

import (
	"os"

	"github.com/nateschmiedehaus/librarian-sub018/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:], os.Stdout, os.Stderr))
}
