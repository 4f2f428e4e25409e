package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"github.com/ShayCichocki/modernity/internal/flow"
)

// printStatus prints a status message with a colored symbol.
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}

// readInput joins the request words and reads attached documents.
func readInput(args, files []string) (flow.Input, error) {
	in := flow.Input{Text: strings.Join(args, " ")}
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return flow.Input{}, fmt.Errorf("read document: %w", err)
		}
		in.Documents = append(in.Documents, flow.Document{
			Name:    filepath.Base(path),
			Content: string(data),
		})
	}
	if strings.TrimSpace(in.Text) == "" && len(in.Documents) == 0 {
		return flow.Input{}, fmt.Errorf("nothing to run: pass request text or --file")
	}
	return in, nil
}

// printResult writes the branch output, or the whole result as JSON.
func printResult(result *flow.Result, asJSON bool) error {
	if asJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Println(result.Output)
	fmt.Println()

	summary := fmt.Sprintf("%s branch (run %s)", result.Branch, result.RunID)
	if result.Report != nil {
		summary += fmt.Sprintf(", overall score %.1f/10", result.Report.OverallScore)
	}
	printStatus("✓", summary, color.FgGreen)
	return nil
}
