package app

import "fmt"

// Version and Commit can be overridden at build time:
// go build -ldflags "-X .../internal/app.Version=v0.3.1 -X .../internal/app.Commit=abcdef0" ./cmd/librarian
var (
	Version = "v0.3.0"
	Commit  = "dev"
)

func VersionString() string {
	return fmt.Sprintf("librarian %s (%s)", Version, Commit)
}
