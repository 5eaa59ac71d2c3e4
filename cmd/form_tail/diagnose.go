package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajsharma/form_tail/internal/cdp"
	"github.com/ajsharma/form_tail/internal/control"
)

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Report success messages that are visible before a form is submitted",
	Long: `diagnose lists the forms on a page together with their success
indicators and whether each one is already visible on load. A visible
indicator means form_tail only counts success after a real submit.

Example:
  form_tail diagnose --url https://example.com/contact
  form_tail diagnose --launch --url https://example.com/contact --json`,
	RunE: runDiagnose,
}

func init() {
	diagnoseCmd.Flags().String("url", "", "Page to inspect (default: the current tab)")
	diagnoseCmd.Flags().Bool("json", false, "Print the report as JSON")
	diagnoseCmd.Flags().Bool("launch", false, "Launch a headless Chrome for the check")
	diagnoseCmd.Flags().Bool("strict", false, "Exit non-zero when a form shows success on load")
	diagnoseCmd.Flags().DurationVarP(&controlTimeout, "timeout", "t", control.DefaultTimeout, "Command timeout")
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	url, _ := cmd.Flags().GetString("url")
	asJSON, _ := cmd.Flags().GetBool("json")
	launch, _ := cmd.Flags().GetBool("launch")
	strict, _ := cmd.Flags().GetBool("strict")

	if launch {
		if url == "" {
			return fmt.Errorf("--url is required with --launch")
		}
		chrome, err := cdp.LaunchChrome(cfg.ChromePort, cdp.LaunchOptions{Headless: true})
		if err != nil {
			return err
		}
		defer func() {
			if err := chrome.Stop(); err != nil {
				log.Warn("failed to stop chrome", zap.Error(err))
			}
		}()
		ctx, cancel := context.WithTimeout(cmd.Context(), controlTimeout)
		err = cdp.NewDevTools(cfg.ChromePort).Wait(ctx)
		cancel()
		if err != nil {
			return err
		}
	}

	return withController(func(ctrl *control.Controller) error {
		report, err := ctrl.Diagnose(url)
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
		} else if err := report.WriteText(os.Stdout); err != nil {
			return err
		}

		if problems := report.Problems(); strict && len(problems) > 0 {
			return fmt.Errorf("%d form(s) show a success message on load", len(problems))
		}
		return nil
	})
}
