package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/cyqual-sec/aws-delete-default-vpc/vpc"
	"github.com/overmindtech/pterm"
	log "github.com/sirupsen/logrus"
)

// summaryRows builds the table shown at the end of a run, one row per
// processed region
func summaryRows(report vpc.Report) pterm.TableData {
	data := pterm.TableData{
		{"Region", "Default VPC", "Interfaces", "Result"},
	}

	for _, r := range report.Regions {
		network := "-"
		interfaces := "-"
		if r.NetworkID != "" {
			network = Cyan.Color(r.NetworkID)
			interfaces = strconv.Itoa(r.Interfaces)
		}

		data = append(data, []string{r.Region, network, interfaces, resultText(r)})
	}

	return data
}

func resultText(r vpc.RegionResult) string {
	text := r.Status.String()

	// partial teardowns say how far they got
	if r.Teardown != nil && r.Err != nil {
		text = fmt.Sprintf("%v after %v", text, r.Teardown.Reached)
	}

	switch r.Status {
	case vpc.RegionTornDown:
		return Green.Color(text)
	case vpc.RegionInUse, vpc.RegionDeclined, vpc.RegionListed:
		return Yellow.Color(text)
	case vpc.RegionFailed, vpc.RegionAborted, vpc.RegionAmbiguous:
		return Red.Color(text)
	default:
		return text
	}
}

// printSummary renders the result table and logs a one line tally. It never
// changes the outcome of the run.
func printSummary(w io.Writer, report vpc.Report) error {
	lf := log.Fields{
		"run-id":  report.RunID.String(),
		"account": report.Identity.Account,
	}

	if report.IdentityDeclined {
		return nil
	}

	if len(report.Regions) > 0 {
		table, err := pterm.DefaultTable.WithHasHeader().WithData(summaryRows(report)).Srender()
		if err != nil {
			return err
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, table)
	}

	if report.Interrupted {
		log.WithFields(lf).Warn("Run was interrupted, not every region was processed")
	}

	log.WithFields(lf).Infof("Processed %d regions: %d deleted, %d listed, %d in use, %d declined, %d without a default VPC, %d failed",
		len(report.Regions),
		report.Count(vpc.RegionTornDown),
		report.Count(vpc.RegionListed),
		report.Count(vpc.RegionInUse),
		report.Count(vpc.RegionDeclined),
		report.Count(vpc.RegionNoDefault),
		report.Count(vpc.RegionFailed)+report.Count(vpc.RegionAborted)+report.Count(vpc.RegionAmbiguous),
	)

	return nil
}
