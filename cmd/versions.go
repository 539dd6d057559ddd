package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"grimm.is/ruledit/internal/client"
)

// RunVersions queries the version store of a ruledit server:
//
//	versions list [-device D]
//	versions get ID
//	versions diff [-unified] FROM TO
//	versions devices
func RunVersions(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: versions <list|get|diff|devices> [options]")
	}
	sub, args := args[0], args[1:]

	fs := flag.NewFlagSet("versions "+sub, flag.ContinueOnError)
	fs.SetOutput(stderr)
	server := fs.String("server", defaultServer(), "ruledit API URL")
	fs.StringVar(server, "s", defaultServer(), "ruledit API URL (short)")
	timeout := fs.Duration("timeout", 30*time.Second, "Request timeout")
	device := fs.String("device", "", "Only list versions of this device")
	unified := fs.Bool("unified", false, "Print a unified diff")
	noColor := fs.Bool("no-color", false, "Disable colored output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c := client.NewHTTPClient(*server, client.WithTimeout(*timeout))

	switch sub {
	case "list":
		list, err := c.ListVersions(ctx, *device)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(stdout, 0, 0, 3, ' ', 0)
		Printer.Fprintln(w, "ID\tDEVICE\tVERSION\tTYPE\tCREATED\tDESCRIPTION")
		for _, r := range list {
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\t%s\n",
				r.ID, r.DeviceName, r.Version, r.ConfigType, r.CreatedAt.Local().Format(time.DateTime), r.Description)
		}
		return w.Flush()

	case "get":
		id, err := argID(fs, 0)
		if err != nil {
			return err
		}
		rec, err := c.GetVersion(ctx, id)
		if err != nil {
			return err
		}
		_, err = io.WriteString(stdout, rec.ConfigData)
		return err

	case "diff":
		from, err := argID(fs, 0)
		if err != nil {
			return err
		}
		to, err := argID(fs, 1)
		if err != nil {
			return err
		}
		if *unified {
			text, err := c.DiffUnified(ctx, from, to)
			if err != nil {
				return err
			}
			writeUnified(stdout, text, *noColor)
			if text == "" {
				return nil
			}
			return ErrDiffers
		}
		d, err := c.Diff(ctx, from, to)
		if err != nil {
			return err
		}
		writeMarked(stdout, d.Lines, *noColor)
		writeSummary(stderr, d.Added, d.Removed)
		if d.Added+d.Removed > 0 {
			return ErrDiffers
		}
		return nil

	case "devices":
		devices, err := c.Devices(ctx)
		if err != nil {
			return err
		}
		for _, d := range devices {
			fmt.Fprintln(stdout, d)
		}
		return nil
	}
	return fmt.Errorf("unknown versions command %q", sub)
}

func argID(fs *flag.FlagSet, i int) (int64, error) {
	if fs.NArg() <= i {
		return 0, fmt.Errorf("missing version id")
	}
	var id int64
	if _, err := fmt.Sscan(fs.Arg(i), &id); err != nil {
		return 0, fmt.Errorf("invalid version id %q", fs.Arg(i))
	}
	return id, nil
}
