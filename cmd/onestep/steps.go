package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aretw0/onestep/pkg/step"
)

var stepsJSON bool

var stepsCmd = &cobra.Command{
	Use:   "steps",
	Short: "List the available steps and their configuration fields",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := step.DefaultRegistry()
		out := cmd.OutOrStdout()

		if stepsJSON {
			schemas := map[string]any{}
			for _, name := range reg.Names() {
				st, _ := reg.Lookup(name)
				schemas[name] = st.Schema()
			}
			data, err := json.MarshalIndent(schemas, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "STEP\tFIELD\tTYPE\tREQUIRED\tDEFAULT")
		for _, name := range reg.Names() {
			st, _ := reg.Lookup(name)
			sch := st.Schema()
			for _, key := range sch.Keys() {
				f := sch[key]
				def := ""
				if f.Default != nil {
					def = fmt.Sprint(f.Default)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", name, key, f.Type.Name(), f.Required, def)
			}
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(stepsCmd)
	stepsCmd.Flags().BoolVar(&stepsJSON, "json", false, "Print the schemas as JSON")
}
