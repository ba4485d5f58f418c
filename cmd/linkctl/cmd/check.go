/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/facebook/linkmgr/stats"
)

type status int

// possible check results
const (
	OK status = iota
	WARN
	FAIL
)

func (s status) String() string {
	switch s {
	case OK:
		return color.GreenString("[ OK ]")
	case WARN:
		return color.YellowString("[WARN]")
	}
	return color.RedString("[FAIL]")
}

// flags
var (
	checkUCWBERFlag float64
	checkCCWBERFlag float64
)

func init() {
	RootCmd.AddCommand(checkCmd)
	checkCmd.Flags().Float64Var(&checkUCWBERFlag, "ucw-ber", 1e-12, "warn when uncorrectable codeword error rate is above this")
	checkCmd.Flags().Float64Var(&checkCCWBERFlag, "ccw-ber", 1e-5, "warn when correctable codeword error rate is above this")
}

// checkLink diagnoses one link
func checkLink(l *stats.LinkStatus, counters map[string]int64, ucwBER, ccwBER float64) (status, string) {
	switch {
	case l.State != "up":
		msg := fmt.Sprintf("%s is %s", l.ID, color.RedString(l.State))
		if l.UpFailCause != "" && l.UpFailCause != "none" {
			msg += fmt.Sprintf(", last up failed with %s", l.UpFailCause)
		}
		if l.LastError != "" {
			msg += ": " + l.LastError
		}
		return FAIL, msg
	case l.UCWBER > ucwBER:
		return WARN, fmt.Sprintf("%s ucw ber is %s, we expect it to be within %s", l.ID, color.YellowString("%.2e", l.UCWBER), color.BlueString("%.0e", ucwBER))
	case l.CCWBER > ccwBER:
		return WARN, fmt.Sprintf("%s ccw ber is %s, we expect it to be within %s", l.ID, color.YellowString("%.2e", l.CCWBER), color.BlueString("%.0e", ccwBER))
	case l.LLR != "" && l.LLR != "running":
		return WARN, fmt.Sprintf("%s is up but llr is %s", l.ID, color.YellowString(l.LLR))
	case counters["async_down"] > 0:
		return WARN, fmt.Sprintf("%s is up, went down on its own %s times", l.ID, color.YellowString("%d", counters["async_down"]))
	}
	return OK, fmt.Sprintf("%s is up at %s", l.ID, l.Tech)
}

func checkPrint(w io.Writer, links stats.LinkStatuses, counters stats.Counters, ucwBER, ccwBER float64) status {
	worst := OK
	for _, l := range links {
		st, msg := checkLink(l, counters.Link(l.ID), ucwBER, ccwBER)
		fmt.Fprintf(w, "%s %s\n", st, msg)
		if st > worst {
			worst = st
		}
	}
	return worst
}

func checkRun(server string, ucwBER, ccwBER float64) (status, error) {
	links, err := stats.FetchLinks(server)
	if err != nil {
		return FAIL, fmt.Errorf("fetching links: %w", err)
	}
	counters, err := stats.FetchCounters(server)
	if err != nil {
		return FAIL, fmt.Errorf("fetching counters: %w", err)
	}
	return checkPrint(os.Stdout, links, counters, ucwBER, ccwBER), nil
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Diagnose every link. Exits non-zero when a link is down",
	Run: func(c *cobra.Command, args []string) {
		ConfigureVerbosity()

		st, err := checkRun(rootServerFlag, checkUCWBERFlag, checkCCWBERFlag)
		if err != nil {
			log.Fatal(err)
		}
		if st == FAIL {
			os.Exit(1)
		}
	},
}
