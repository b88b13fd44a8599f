package main

import (
	"github.com/alecthomas/kong"
)

var (
	version = "dev"
)

// CLI is the evalctl command line.
type CLI struct {
	Globals

	Version kong.VersionFlag `short:"v" help:"Show version information"`

	Run      RunCmd      `cmd:"" help:"Evaluate a case file against the configured provider" default:"1"`
	Validate ValidateCmd `cmd:"" help:"Validate a case file against the JSON schema"`
	Schema   SchemaCmd   `cmd:"" help:"Print the case file JSON schema"`
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("evalctl"),
		kong.Description("Run interview answer evaluations offline"),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)

	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
