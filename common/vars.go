package common

var (
	Version = "dev"

	PackageName = "github.com/ruteri/bkps-admin"
)
