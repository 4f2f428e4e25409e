package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rubricsCmd = &cobra.Command{
	Use:   "rubrics",
	Short: "Print the effective scoring rubrics",
	Long: `Print the rubric used to score each category, as YAML.

The built-in rubrics can be overridden per category with a file named by
analysis.rubrics_file. The output of this command is a valid override file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		rubrics, err := loadRubrics(cfg)
		if err != nil {
			return err
		}
		data, err := rubrics.YAML()
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), string(data))
		return nil
	},
}
