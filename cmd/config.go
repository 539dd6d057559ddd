package cmd

import (
	"fmt"
	"io"

	"grimm.is/ruledit/internal/config"
)

// RunConfig handles "config default" and "config show FILE". Both print HCL
// that loads back to the same settings.
func RunConfig(args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: config <default|show FILE>")
	}

	var cfg *config.Config
	switch args[0] {
	case "default":
		cfg = config.Default()
	case "show":
		if len(args) < 2 {
			return fmt.Errorf("usage: config show FILE")
		}
		var err error
		if cfg, err = config.Load(args[1]); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown config command %q", args[0])
	}

	_, err := out.Write(cfg.Encode())
	return err
}
