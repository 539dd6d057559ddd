package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"grimm.is/ruledit/internal/brand"
)

// RunCheck validates a configuration file and prints the effective settings.
func RunCheck(configFile string, verbose bool, out io.Writer) error {
	if len(configFile) == 0 {
		return fmt.Errorf("usage: %s check [-v] <config-file>\nExample: %s check -v %s", brand.BinaryName, brand.BinaryName, brand.DefaultConfigPath())
	}

	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	Printer.Fprintf(out, "Configuration valid!\n")
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "Listen:\t%s\n", cfg.Listen)
	fmt.Fprintf(w, "Database:\t%s\n", cfg.Database)
	fmt.Fprintf(w, "Firewall type:\t%s\n", cfg.FirewallType())
	fmt.Fprintf(w, "Session TTL:\t%s\n", cfg.SessionTTL)
	fmt.Fprintf(w, "Request timeout:\t%s\n", cfg.RequestTimeout)
	fmt.Fprintf(w, "Strict parsing:\t%t\n", cfg.StrictParse)
	if err := w.Flush(); err != nil {
		return err
	}

	if verbose {
		Printer.Fprintln(out, "\n--- Effective configuration ---")
		_, err = out.Write(cfg.Encode())
	}
	return err
}
