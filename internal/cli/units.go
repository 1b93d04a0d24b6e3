package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tidewatch/tidewatch/internal/units"
	"github.com/tidewatch/tidewatch/pkg/types"
)

// UnitsCmd groups the unit catalogue commands.
func UnitsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "units",
		Short: "Inspect the unit catalogue and convert values",
	}
	cmd.AddCommand(unitsListCmd(), unitsConvertCmd())
	return cmd
}

func unitsListCmd() *cobra.Command {
	var group string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List unit groups and their measures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			found := false
			for _, g := range units.Groups() {
				if group != "" && g.Name != group {
					continue
				}
				found = true
				if g.Base != "" {
					fmt.Fprintf(out, "%s (base %s)\n", g.Name, g.Base)
				} else {
					fmt.Fprintf(out, "%s\n", g.Name)
				}
				for _, u := range g.Units {
					fmt.Fprintf(out, "  %-12s %s\n", u.Measure, u.Description)
				}
			}
			if !found {
				return fmt.Errorf("unknown unit group %q", group)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&group, "group", "", "Only list this group, e.g. Speed")
	return cmd
}

func unitsConvertCmd() *cobra.Command {
	var toBase bool
	cmd := &cobra.Command{
		Use:   "convert <measure> <value>",
		Short: "Convert a canonical value into measure (or back with --to-base)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			measure := args[0]
			v, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("value %q is not a number", args[1])
			}
			out := cmd.OutOrStdout()

			if toBase {
				f, err := units.ToBase(measure, v)
				if err != nil {
					return err
				}
				g, _ := units.GroupOf(measure)
				fmt.Fprintf(out, "%s %s\n", strconv.FormatFloat(f, 'f', -1, 64), g.Base)
				return nil
			}

			res, err := units.Convert(measure, types.Number(v))
			if err != nil {
				return err
			}
			if res.IsText {
				fmt.Fprintln(out, res.Text)
				return nil
			}
			fmt.Fprintf(out, "%s %s\n", res, measure)
			return nil
		},
	}
	cmd.Flags().BoolVar(&toBase, "to-base", false, "Convert from measure back to the canonical unit")
	return cmd
}
