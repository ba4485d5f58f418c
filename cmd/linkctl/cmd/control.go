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

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/facebook/linkmgr/stats"
)

func init() {
	for _, op := range []struct {
		name  string
		short string
	}{
		{stats.OpUp, "Bring links up"},
		{stats.OpDown, "Take links down"},
		{stats.OpReset, "Take links down and forget their history"},
	} {
		RootCmd.AddCommand(controlCmd(op.name, op.short))
	}
}

func controlRun(server, op string, ids []string) error {
	failed := 0
	for _, id := range ids {
		if err := stats.Control(server, id, op); err != nil {
			log.Error(err)
			failed++
			continue
		}
		fmt.Printf("%s: %s requested\n", id, op)
	}
	if failed > 0 {
		return fmt.Errorf("%s failed on %d of %d links", op, failed, len(ids))
	}
	return nil
}

func controlCmd(op, short string) *cobra.Command {
	return &cobra.Command{
		Use:   op + " <dev/group/link>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		Run: func(c *cobra.Command, args []string) {
			ConfigureVerbosity()

			if err := controlRun(rootServerFlag, op, args); err != nil {
				log.Fatal(err)
			}
		},
	}
}
