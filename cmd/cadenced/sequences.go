package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var sequencesCmd = &cobra.Command{
	Use:   "sequences",
	Short: "List and validate the configured sequence catalog",
	Long: `Loads the builtin sequences plus any YAML directory configured under
sequences.dir, validates every definition, and prints the catalog.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		catalog, err := buildCatalog()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SEQUENCE\tSTEPS\tSPAN\tSOURCE\tDESCRIPTION")
		for _, name := range catalog.Names() {
			def, err := catalog.Get(name)
			if err != nil {
				return err
			}
			span := def.Steps[0].Delay
			for _, step := range def.Steps {
				if step.Delay > span {
					span = step.Delay
				}
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
				def.ID, len(def.Steps), span, def.Source, def.Description)
		}
		return w.Flush()
	},
}
