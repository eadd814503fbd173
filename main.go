// Command gobasic compiles line-numbered BASIC programs to JVM class files
// and optionally runs them in the built-in harness.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/ethereum/go-ethereum/log"
	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"gopkg.in/urfave/cli.v1"

	"gobasic/pkg/compiler"
	"gobasic/pkg/config"
	"gobasic/pkg/utils"
	"gobasic/pkg/vm"
)

var (
	configFileFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	verbosityFlag = cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=detail",
		Value: config.Defaults.Log.Verbosity,
	}
	runFlag = cli.BoolFlag{
		Name:  "run",
		Usage: "Run the compiled class in the harness instead of writing it",
	}
	listFlag = cli.BoolFlag{
		Name:  "list",
		Usage: "Print the canonical listing of the program",
	}
	outFlag = cli.StringFlag{
		Name:  "out",
		Usage: "Output class file (default: source name with .class)",
	}
	templateFlag = cli.StringFlag{
		Name:  "template",
		Usage: "Class file to patch instead of the built-in template",
	}
	foldCaseFlag = cli.BoolFlag{
		Name:  "fold",
		Usage: "Accept lower-case keywords and names",
	}
	seedFlag = cli.Int64Flag{
		Name:  "seed",
		Usage: "RND seed for --run (0 picks one from the clock)",
	}

	compileCommand = cli.Command{
		Action:    compileAction,
		Name:      "compile",
		Usage:     "Compile a BASIC program to a class file",
		ArgsUsage: "<source.bas>",
		Flags: []cli.Flag{
			configFileFlag, verbosityFlag, runFlag, listFlag,
			outFlag, templateFlag, foldCaseFlag, seedFlag,
		},
		Description: `The compile command translates a BASIC program into a JVM class whose
run() method executes it and prints the class file's path. With --run the
class is executed in-process and nothing is written.`,
	}
	dumpConfigCommand = cli.Command{
		Action:      dumpConfig,
		Name:        "dumpconfig",
		Usage:       "Show configuration values",
		ArgsUsage:   "[file]",
		Flags:       []cli.Flag{configFileFlag, verbosityFlag, templateFlag, foldCaseFlag, seedFlag},
		Description: `The dumpconfig command shows configuration values.`,
	}
)

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "gobasic"
	app.Usage = "BASIC to JVM class file compiler"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{configFileFlag, verbosityFlag}
	app.Commands = []cli.Command{compileCommand, dumpConfigCommand}
	return app
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

// flagString reads a flag given either before or after the command name.
func flagString(ctx *cli.Context, name string) string {
	if ctx.IsSet(name) {
		return ctx.String(name)
	}
	return ctx.GlobalString(name)
}

// makeConfig loads the configuration file, applies the command line flags
// on top and installs the log handler.
func makeConfig(ctx *cli.Context) (config.Config, error) {
	cfg := config.Defaults
	if file := flagString(ctx, configFileFlag.Name); file != "" {
		var err error
		if cfg, err = config.Load(file); err != nil {
			return cfg, err
		}
	}
	switch {
	case ctx.IsSet(verbosityFlag.Name):
		cfg.Log.Verbosity = ctx.Int(verbosityFlag.Name)
	case ctx.GlobalIsSet(verbosityFlag.Name):
		cfg.Log.Verbosity = ctx.GlobalInt(verbosityFlag.Name)
	}
	if ctx.IsSet(templateFlag.Name) {
		cfg.Compiler.Template = ctx.String(templateFlag.Name)
	}
	if ctx.IsSet(foldCaseFlag.Name) {
		cfg.Compiler.FoldCase = ctx.Bool(foldCaseFlag.Name)
	}
	if ctx.IsSet(seedFlag.Name) {
		cfg.Runtime.Seed = ctx.Int64(seedFlag.Name)
	}
	setupLogging(cfg.Log)
	return cfg, nil
}

func setupLogging(c config.Log) {
	usecolor := c.Color && (isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()))
	output := colorable.NewColorableStderr()
	log.Root().SetHandler(log.LvlFilterHandler(log.Lvl(c.Verbosity), log.StreamHandler(output, log.TerminalFormat(usecolor))))
}

func compileAction(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("compile needs exactly one source file")
	}
	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	file := ctx.Args().First()
	source, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	src := string(source)
	opts, err := cfg.CompilerOptions()
	if err != nil {
		return err
	}

	if ctx.Bool(listFlag.Name) {
		if err := listProgram(ctx.App.Writer, src, opts); err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
	}

	className := utils.ClassName(file)
	class, err := compiler.Compile(src, className, opts)
	if err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}

	// --run executes the class in-process instead of writing it.
	if ctx.Bool(runFlag.Name) {
		return runClass(class, cfg, ctx.App.Writer)
	}

	out := ctx.String(outFlag.Name)
	if out == "" {
		if out, err = utils.ClassPath(file, cfg.Compiler.OutputDir); err != nil {
			return err
		}
	}
	if err := writeClass(out, class); err != nil {
		return err
	}
	log.Debug("Wrote class file", "path", out, "class", className, "bytes", len(class))
	fmt.Fprintln(ctx.App.Writer, out)
	return nil
}

func listProgram(w io.Writer, src string, opts compiler.Options) error {
	if opts.FoldCase {
		src = compiler.FoldCase(src)
	}
	prog, err := compiler.Parse(src)
	if err != nil {
		return err
	}
	fmt.Fprint(w, compiler.List(prog))
	return nil
}

func writeClass(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

func runClass(class []byte, cfg config.Config, w io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	input, closeInput := vm.StdinReader()
	defer closeInput()

	opts := cfg.VMOptions()
	opts.Output = w
	opts.Input = input
	return vm.RunClass(ctx, class, opts)
}

// dumpConfig is the dumpconfig command.
func dumpConfig(ctx *cli.Context) error {
	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	out, err := cfg.Marshal()
	if err != nil {
		return err
	}

	dump := os.Stdout
	if ctx.NArg() > 0 {
		dump, err = os.OpenFile(ctx.Args().Get(0), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return err
		}
		defer dump.Close()
	}
	_, err = dump.Write(out)
	return err
}
