package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/brxload/internal/performance/config"
	"github.com/wesleyorama2/brxload/internal/performance/gateway"
	"github.com/wesleyorama2/brxload/internal/performance/selector"
)

func newScenariosCommand(a *app) *cobra.Command {
	var (
		scenariosPath string
		configPath    string
		showQueries   bool
	)

	cmd := &cobra.Command{
		Use:   "scenarios",
		Short: "List the weighted query scenarios and their probabilities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg *config.TestConfig
			if configPath != "" {
				loaded, err := config.LoadConfig(configPath, config.DefaultLoadConfig())
				if err != nil {
					return err
				}
				cfg = loaded
			}

			scenarios, err := resolveScenarios(scenariosPath, cfg)
			if err != nil {
				return err
			}
			sel, err := selector.New(scenarios)
			if err != nil {
				return errors.Wrap(err, "invalid scenario table")
			}

			printScenarios(cmd, sel, showQueries)
			return nil
		},
	}

	cmd.Flags().StringVar(&scenariosPath, "scenarios", "", "YAML or JSON file with the weighted query table")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file whose queries to list")
	cmd.Flags().BoolVar(&showQueries, "queries", false, "Include the SQL text")

	return cmd
}

func printScenarios(cmd *cobra.Command, sel *selector.Selector, showQueries bool) {
	out := cmd.OutOrStdout()

	header := []string{"Name", "Weight", "Probability"}
	if showQueries {
		header = append(header, "Query")
	}

	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for i, s := range sel.Scenarios() {
		row := []string{s.Name, strconv.Itoa(s.Weight), fmt.Sprintf("%.1f%%", sel.Probability(i)*100)}
		if showQueries {
			row = append(row, gateway.Truncate(strings.Join(strings.Fields(s.Query), " "), 80))
		}
		table.Append(row)
	}
	table.Render()

	fmt.Fprintf(out, "%d scenarios, total weight %d\n", len(sel.Scenarios()), sel.Total())
}
