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

	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/facebook/linkmgr/stats"
)

func init() {
	RootCmd.AddCommand(fecCmd)
}

func fecTable(w io.Writer, links stats.LinkStatuses, counters stats.Counters) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{
		"link", "fec", "monitor", "ucw", "ccw", "gcw", "ucw ber", "ccw ber", "ucw warn", "ccw warn",
	})
	for _, l := range links {
		c := counters.Link(l.ID)
		monitor := "off"
		if c["fec.running"] != 0 {
			monitor = "on"
		}
		table.Append([]string{
			l.ID,
			l.FEC,
			monitor,
			fmt.Sprintf("%d", c["fec.ucw"]),
			fmt.Sprintf("%d", c["fec.ccw"]),
			fmt.Sprintf("%d", c["fec.gcw"]),
			fmtBER(l.UCWBER),
			fmtBER(l.CCWBER),
			fmt.Sprintf("%d", c["ucw_warn"]),
			fmt.Sprintf("%d", c["ccw_warn"]),
		})
	}
	table.Render()
}

func fecRun(server string) error {
	links, err := stats.FetchLinks(server)
	if err != nil {
		return fmt.Errorf("fetching links: %w", err)
	}
	counters, err := stats.FetchCounters(server)
	if err != nil {
		return fmt.Errorf("fetching counters: %w", err)
	}
	fecTable(os.Stdout, links, counters)
	return nil
}

var fecCmd = &cobra.Command{
	Use:   "fec",
	Short: "Print FEC codeword counters and bit error rates of every link",
	Run: func(c *cobra.Command, args []string) {
		ConfigureVerbosity()

		if err := fecRun(rootServerFlag); err != nil {
			log.Fatal(err)
		}
	},
}
