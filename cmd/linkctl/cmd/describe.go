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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/davecgh/go-spew/spew"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/facebook/linkmgr/stats"
)

var describeDumpFlag bool

func init() {
	RootCmd.AddCommand(describeCmd)
	describeCmd.Flags().BoolVarP(&describeDumpFlag, "dump", "d", false, "dump the raw description instead of JSON")
}

// describeSections is the order top level keys are printed in
var describeSections = []string{"id", "state", "lane_map", "tech", "fec_mode", "link_partner", "tries", "up_fail_cause", "down_cause", "info_map", "last_error"}

func describePrint(w io.Writer, desc map[string]interface{}, dump bool) error {
	if dump {
		spew.Fdump(w, desc)
		return nil
	}
	printed := map[string]bool{}
	for _, k := range describeSections {
		if v, ok := desc[k]; ok {
			fmt.Fprintf(w, "%-14s %v\n", k+":", v)
			printed[k] = true
		}
	}
	rest := []string{}
	for k := range desc {
		if !printed[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		b, err := json.MarshalIndent(desc[k], "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s: %s\n", k, b)
	}
	return nil
}

func describeRun(server, id string, dump bool) error {
	desc, err := stats.FetchLink(server, id)
	if err != nil {
		return fmt.Errorf("fetching link %s: %w", id, err)
	}
	return describePrint(os.Stdout, desc, dump)
}

var describeCmd = &cobra.Command{
	Use:   "describe <dev/group/link>",
	Short: "Print full description of a link",
	Args:  cobra.ExactArgs(1),
	Run: func(c *cobra.Command, args []string) {
		ConfigureVerbosity()

		if err := describeRun(rootServerFlag, args[0], describeDumpFlag); err != nil {
			log.Fatal(err)
		}
	},
}
