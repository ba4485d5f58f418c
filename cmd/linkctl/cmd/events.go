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
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/facebook/linkmgr/stats"
)

var eventsLinkFlag string

func init() {
	RootCmd.AddCommand(eventsCmd)
	eventsCmd.Flags().StringVarP(&eventsLinkFlag, "link", "l", "", "only show events of this link or port group")
}

func eventsPrint(w io.Writer, events []stats.Event, filter string) {
	for _, e := range events {
		if filter != "" && e.Link != filter {
			continue
		}
		fmt.Fprintf(w, "%s %-8s %-18s info_map=0x%x", e.Timestamp.Format(time.RFC3339Nano), e.Link, e.Type, e.InfoMap)
		if len(e.Info) > 0 {
			fmt.Fprintf(w, " %s", e.Info)
		}
		fmt.Fprintln(w)
	}
}

func eventsRun(server, filter string) error {
	events, err := stats.FetchEvents(server)
	if err != nil {
		return fmt.Errorf("fetching events: %w", err)
	}
	eventsPrint(os.Stdout, events, filter)
	return nil
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print recent link notifications, oldest first",
	Run: func(c *cobra.Command, args []string) {
		ConfigureVerbosity()

		if err := eventsRun(rootServerFlag, eventsLinkFlag); err != nil {
			log.Fatal(err)
		}
	},
}
