package main

import "github.com/AtRiskMedia/drillgate/internal/presentation/cli"

func main() {
	cli.Execute()
}
