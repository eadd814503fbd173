// Command basrun executes a class file produced by gobasic in the
// built-in harness.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/ethereum/go-ethereum/log"
	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"gopkg.in/urfave/cli.v1"

	"gobasic/pkg/config"
	"gobasic/pkg/vm"
)

var (
	configFileFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	seedFlag = cli.Int64Flag{
		Name:  "seed",
		Usage: "RND seed (0 picks one from the clock)",
	}
	zoneFlag = cli.IntFlag{
		Name:  "zone",
		Usage: "Print zone width",
		Value: vm.DefaultZoneWidth,
	}
	maxStepsFlag = cli.Int64Flag{
		Name:  "maxsteps",
		Usage: "Abort after this many instructions (0 means no limit)",
	}
	verbosityFlag = cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=detail",
		Value: int(log.LvlWarn),
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "basrun"
	app.Usage = "Run a compiled BASIC class file"
	app.ArgsUsage = "<Program.class>"
	app.Flags = []cli.Flag{configFileFlag, seedFlag, zoneFlag, maxStepsFlag, verbosityFlag}
	app.Action = run
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("need exactly one class file")
	}
	log.Root().SetHandler(log.LvlFilterHandler(log.Lvl(ctx.Int(verbosityFlag.Name)),
		log.StreamHandler(colorable.NewColorableStderr(), log.TerminalFormat(false))))

	cfg := config.Defaults
	if file := ctx.String(configFileFlag.Name); file != "" {
		var err error
		if cfg, err = config.Load(file); err != nil {
			return err
		}
	}
	opts := cfg.VMOptions()
	if ctx.IsSet(seedFlag.Name) {
		opts.Seed = ctx.Int64(seedFlag.Name)
	}
	if ctx.IsSet(zoneFlag.Name) {
		opts.ZoneWidth = ctx.Int(zoneFlag.Name)
	}
	if ctx.IsSet(maxStepsFlag.Name) {
		opts.MaxSteps = ctx.Int64(maxStepsFlag.Name)
	}

	class, err := os.ReadFile(ctx.Args().First())
	if err != nil {
		return err
	}
	input, closeInput := vm.StdinReader()
	defer closeInput()
	opts.Output = os.Stdout
	opts.Input = input

	sigctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return vm.RunClass(sigctx, class, opts)
}
