package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"grimm.is/ruledit/internal/client"
	"grimm.is/ruledit/internal/i18n"
)

// RunUpload sends a rule file to a ruledit server, prints the canonical
// rendering and optionally saves it as a new version.
func RunUpload(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	fs.SetOutput(stderr)
	server := fs.String("server", defaultServer(), "ruledit API URL")
	fs.StringVar(server, "s", defaultServer(), "ruledit API URL (short)")
	file := fs.String("file", "", "Rule file to upload (- for stdin)")
	fs.StringVar(file, "f", "", "Rule file (short)")
	typ := fs.String("type", "", "Firewall type (server default when empty)")
	device := fs.String("device", "", "Device name")
	save := fs.Bool("save", false, "Save the rendering as a new version")
	description := fs.String("description", "", "Version description (with -save)")
	keep := fs.Bool("keep", false, "Keep the editing session open on the server")
	timeout := fs.Duration("timeout", 30*time.Second, "Request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" && fs.NArg() > 0 {
		*file = fs.Arg(0)
	}
	if *save && *device == "" {
		return fmt.Errorf("-save requires -device")
	}

	text, err := readInput(*file)
	if err != nil {
		return err
	}
	name := "stdin.rules"
	if *file != "-" {
		name = filepath.Base(*file)
	}

	c := client.NewHTTPClient(*server, client.WithTimeout(*timeout))
	sess, err := c.Upload(ctx, name, strings.NewReader(text), *typ, *device)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	if !*keep {
		defer c.CloseSession(context.WithoutCancel(ctx), sess.ID)
	}

	if len(sess.Issues) > 0 {
		Printer.Fprintln(stderr, Printer.Sprintf(i18n.MsgSkippedLines, len(sess.Issues)))
	}
	if *keep {
		fmt.Fprintf(stderr, "session: %s\n", sess.ID)
	}
	io.WriteString(stdout, sess.Rendered)

	if *save {
		rec, err := c.SaveSession(ctx, sess.ID, *description)
		if err != nil {
			return fmt.Errorf("save failed: %w", err)
		}
		Printer.Fprintln(stderr, Printer.Sprintf(i18n.MsgVersionSaved, rec.Version, rec.DeviceName))
	}
	return nil
}
