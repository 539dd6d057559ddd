package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"

	"grimm.is/ruledit/cmd"
	"grimm.is/ruledit/internal/brand"
	"grimm.is/ruledit/internal/i18n"
)

var printer = i18n.NewCLIPrinter()

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch os.Args[1] {
	case "serve":
		serveFlags := flag.NewFlagSet("serve", flag.ExitOnError)
		configFile := serveFlags.String("config", "", "Configuration file (defaults plus environment when empty)")
		serveFlags.StringVar(configFile, "c", "", "Configuration file (short)")
		serveFlags.Parse(os.Args[2:])

		if err := cmd.RunServe(*configFile); err != nil {
			printer.Fprintf(os.Stderr, "Serve failed: %v\n", err)
			os.Exit(1)
		}

	case "render":
		exitOn(cmd.RunRender(os.Args[2:], os.Stdout, os.Stderr))

	case "diff":
		exitOn(cmd.RunDiff(os.Args[2:], os.Stdout, os.Stderr))

	case "upload":
		exitOn(cmd.RunUpload(ctx, os.Args[2:], os.Stdout, os.Stderr))

	case "versions":
		exitOn(cmd.RunVersions(ctx, os.Args[2:], os.Stdout, os.Stderr))

	case "check":
		checkFlags := flag.NewFlagSet("check", flag.ExitOnError)
		verbose := checkFlags.Bool("verbose", false, "Print the effective configuration")
		checkFlags.BoolVar(verbose, "v", false, "Verbose output (short)")
		checkFlags.Parse(os.Args[2:])

		configFile := brand.DefaultConfigPath()
		if len(checkFlags.Args()) > 0 {
			configFile = checkFlags.Arg(0)
		}
		if err := cmd.RunCheck(configFile, *verbose, os.Stdout); err != nil {
			printer.Fprintf(os.Stderr, "Check failed: %v\n", err)
			os.Exit(1)
		}

	case "config":
		exitOn(cmd.RunConfig(os.Args[2:], os.Stdout))

	case "version":
		printer.Printf("%s version %s\n", brand.Name, brand.Version)
		if brand.GitCommit != "" {
			printer.Printf("Commit: %s\n", brand.GitCommit)
		}

	case "help", "-h", "--help":
		printUsage()

	default:
		printer.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// exitOn exits non-zero on err. ErrDiffers only sets the status.
func exitOn(err error) {
	switch {
	case err == nil:
		return
	case errors.Is(err, cmd.ErrDiffers):
		os.Exit(1)
	case errors.Is(err, flag.ErrHelp):
		os.Exit(2)
	}
	printer.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func printUsage() {
	b := brand.BinaryName
	printer.Printf("%s - firewall rule editor\n\n", brand.Name)
	printer.Printf("Usage:\n")
	printer.Printf("  %s serve [-config FILE]                  Run the HTTP API\n", b)
	printer.Printf("  %s render [-type T] [-format F] FILE     Print the canonical form of a rule file\n", b)
	printer.Printf("  %s diff [-unified] [-no-color] OLD NEW   Compare two rule files\n", b)
	printer.Printf("  %s upload -server URL [-save] FILE       Upload a rule file to a server\n", b)
	printer.Printf("  %s versions list|get|diff|devices        Query stored versions\n", b)
	printer.Printf("  %s check [-v] FILE                       Validate a configuration file\n", b)
	printer.Printf("  %s config default|show FILE              Print configuration as HCL\n", b)
	printer.Printf("  %s version                               Print version\n", b)
	printer.Printf("\nEnvironment:\n")
	printer.Printf("  %s_SERVER, %s_LISTEN, %s_DATABASE, %s_CONFIG_DIR, %s_STATE_DIR\n",
		brand.ConfigEnvPrefix, brand.ConfigEnvPrefix, brand.ConfigEnvPrefix, brand.ConfigEnvPrefix, brand.ConfigEnvPrefix)
}
