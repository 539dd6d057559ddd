package cmd

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"gopkg.in/yaml.v2"

	"grimm.is/ruledit/internal/i18n"
	"grimm.is/ruledit/internal/ruleset"
)

// RunRender parses a rule file offline and prints its canonical form.
func RunRender(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fs.String("file", "", "Rule file to read (- for stdin)")
	fs.StringVar(file, "f", "", "Rule file (short)")
	typ := fs.String("type", "", "Firewall type: iptables, ip6tables or ebtables")
	fs.StringVar(typ, "t", "", "Firewall type (short)")
	device := fs.String("device", "", "Device name recorded in json/yaml output")
	format := fs.String("format", "text", "Output format: text, json or yaml")
	strict := fs.Bool("strict", false, "Fail on the first line that cannot be parsed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" && fs.NArg() > 0 {
		*file = fs.Arg(0)
	}

	ft, err := parseType(*typ)
	if err != nil {
		return err
	}
	text, err := readInput(*file)
	if err != nil {
		return err
	}

	rs, issues, err := ruleset.ParseWithOptions(text, ft, ruleset.ParseOptions{Strict: *strict})
	if err != nil {
		return fmt.Errorf("%s: %w", Printer.Sprintf(i18n.MsgParseFailed), err)
	}
	rs.DeviceName = *device
	if len(issues) > 0 {
		Printer.Fprintln(stderr, Printer.Sprintf(i18n.MsgSkippedLines, len(issues)))
		for _, is := range issues {
			fmt.Fprintf(stderr, "  line %d: %s: %s\n", is.Line, is.Reason, is.Text)
		}
	}

	switch *format {
	case "text":
		_, err = io.WriteString(stdout, rs.Render())
	case "json":
		var data []byte
		if data, err = json.MarshalIndent(rs, "", "  "); err == nil {
			_, err = fmt.Fprintf(stdout, "%s\n", data)
		}
	case "yaml":
		var data []byte
		if data, err = yaml.Marshal(rs); err == nil {
			_, err = stdout.Write(data)
		}
	default:
		return fmt.Errorf("unknown format %q (want text, json or yaml)", *format)
	}
	return err
}
