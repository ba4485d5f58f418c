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
	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/facebook/linkmgr/stats"
)

func init() {
	RootCmd.AddCommand(statusCmd)
}

func colorState(state string) string {
	switch state {
	case "up":
		return color.GreenString(state)
	case "starting", "stopping":
		return color.YellowString(state)
	}
	return color.RedString(state)
}

func fmtBER(ber float64) string {
	if ber == 0 {
		return "0"
	}
	return fmt.Sprintf("%.2e", ber)
}

func statusTable(w io.Writer, links stats.LinkStatuses) {
	table := tablewriter.NewWriter(w)
	table.SetColWidth(20)
	table.SetHeader([]string{
		"link", "state", "lanes", "tech", "speed", "fec", "tries", "llr", "ucw ber", "ccw ber", "cause",
	})
	for _, l := range links {
		cause := l.DownCause
		if l.State != "up" && l.UpFailCause != "none" {
			cause = l.UpFailCause
		}
		val := []string{
			l.ID,
			colorState(l.State),
			fmt.Sprintf("0x%X", l.LaneMap),
			l.Tech,
			fmt.Sprintf("%dG", l.SpeedGbps),
			l.FEC,
			fmt.Sprintf("%d", l.Tries),
			l.LLR,
			fmtBER(l.UCWBER),
			fmtBER(l.CCWBER),
			cause,
		}
		table.Append(val)
	}
	table.Render()
	fmt.Fprintf(w, "%d of %d links up\n", links.Up(), len(links))
}

func statusRun(server string) error {
	links, err := stats.FetchLinks(server)
	if err != nil {
		return fmt.Errorf("fetching links: %w", err)
	}
	statusTable(os.Stdout, links)
	return nil
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print state of every link",
	Run: func(c *cobra.Command, args []string) {
		ConfigureVerbosity()

		if err := statusRun(rootServerFlag); err != nil {
			log.Fatal(err)
		}
	},
}
