package config

import (
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

// Encode renders the effective configuration as HCL, e.g. to seed a
// config file.
func (c *Config) Encode() []byte {
	f := hclwrite.NewEmptyFile()
	body := f.Body()

	body.SetAttributeValue("listen", cty.StringVal(c.Listen))
	body.SetAttributeValue("database", cty.StringVal(c.Database))
	body.SetAttributeValue("log_level", cty.StringVal(c.LogLevel))
	body.SetAttributeValue("log_json", cty.BoolVal(c.LogJSON))
	body.AppendNewline()
	body.SetAttributeValue("default_firewall_type", cty.StringVal(c.DefaultFirewallType))
	body.SetAttributeValue("strict_parse", cty.BoolVal(c.StrictParse))
	body.SetAttributeValue("max_upload_bytes", cty.NumberIntVal(c.MaxUploadBytes))
	body.SetAttributeValue("sessions_per_minute", cty.NumberIntVal(int64(c.SessionsPerMinute)))
	body.AppendNewline()
	body.SetAttributeValue("session_ttl", cty.StringVal(c.SessionTTL.String()))
	body.SetAttributeValue("request_timeout", cty.StringVal(c.RequestTimeout.String()))

	return hclwrite.Format(f.Bytes())
}
