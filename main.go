package main

import (
	api "mailtrack-backend/cmd/api"

	"go.uber.org/fx"
)

func main() {
	fx.New(api.Module()).Run()
}
