package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/quota"
	"github.com/therealutkarshpriyadarshi/cnpjleads/pkg/models"
	"gopkg.in/yaml.v3"
)

// OutputFormatter renders command results as text, JSON or YAML
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// Write renders v. text is used for the text format.
func (f *OutputFormatter) Write(v interface{}, text func(w io.Writer) error) error {
	switch f.Format {
	case "json":
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(f.Writer)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return text(f.Writer)
	}
}

// keyRecord is the exported shape of a generated key
type keyRecord struct {
	ID    string `json:"id" yaml:"id"`
	Key   string `json:"key" yaml:"key"`
	Units int    `json:"units" yaml:"units"`
	Plan  string `json:"plan" yaml:"plan"`
}

// adminRecord is the exported shape of a created administrator
type adminRecord struct {
	ID       string `json:"id" yaml:"id"`
	Username string `json:"username" yaml:"username"`
	Email    string `json:"email" yaml:"email"`
}

func keyRecords(keys []*models.LicenseKey) []keyRecord {
	records := make([]keyRecord, 0, len(keys))
	for _, k := range keys {
		records = append(records, keyRecord{
			ID:    k.ID,
			Key:   k.KeyValue,
			Units: k.TotalUnits,
			Plan:  quota.PlanFor(k.TotalUnits),
		})
	}
	return records
}

func writeKeyTable(w io.Writer, records []keyRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tUNITS\tPLAN")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", r.Key, r.Units, r.Plan)
	}
	return tw.Flush()
}
