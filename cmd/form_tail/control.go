package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ajsharma/form_tail/internal/control"
)

var controlTimeout time.Duration

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Drive the browser to exercise forms",
	Long: `Send commands to a Chrome tab to fill and submit forms while form_tail
is watching. Requires Chrome to be running with remote debugging enabled.

Example:
  form_tail control navigate --url http://127.0.0.1:8089/demo
  form_tail control fill --selector "#contact-email" --text "a@example.com"
  form_tail control submit --selector "#contact"
  form_tail control wait --selector "#contact-wrapper .w-form-done"`,
}

// withController connects to Chrome, runs fn and closes the connection.
func withController(fn func(*control.Controller) error) error {
	ctrl := control.NewController(cfg.ChromePort)
	defer ctrl.Close()
	ctrl.SetTimeout(controlTimeout)
	return fn(ctrl)
}

func requireFlag(cmd *cobra.Command, name string) (string, error) {
	v, _ := cmd.Flags().GetString(name)
	if v == "" {
		return "", fmt.Errorf("--%s is required", name)
	}
	return v, nil
}

// selectorCommand builds a command that acts on one CSS selector.
func selectorCommand(use, short, done string, act func(*control.Controller, string) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			selector, err := requireFlag(cmd, "selector")
			if err != nil {
				return err
			}
			return withController(func(ctrl *control.Controller) error {
				if err := act(ctrl, selector); err != nil {
					return fmt.Errorf("%s failed: %w", use, err)
				}
				fmt.Printf("%s: %s\n", done, selector)
				return nil
			})
		},
	}
	cmd.Flags().String("selector", "", "CSS selector of the element")
	return cmd
}

var navigateCmd = &cobra.Command{
	Use:   "navigate",
	Short: "Navigate to a URL",
	RunE: func(cmd *cobra.Command, args []string) error {
		url, err := requireFlag(cmd, "url")
		if err != nil {
			return err
		}
		return withController(func(ctrl *control.Controller) error {
			if err := ctrl.Navigate(url); err != nil {
				return fmt.Errorf("navigate failed: %w", err)
			}
			fmt.Printf("Navigated to: %s\n", url)
			return nil
		})
	},
}

var fillCmd = &cobra.Command{
	Use:     "fill",
	Aliases: []string{"type"},
	Short:   "Replace the value of a form field",
	RunE: func(cmd *cobra.Command, args []string) error {
		selector, err := requireFlag(cmd, "selector")
		if err != nil {
			return err
		}
		text, err := requireFlag(cmd, "text")
		if err != nil {
			return err
		}
		return withController(func(ctrl *control.Controller) error {
			if err := ctrl.Fill(selector, text); err != nil {
				return fmt.Errorf("fill failed: %w", err)
			}
			fmt.Printf("Filled %s\n", selector)
			return nil
		})
	},
}

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate JavaScript",
	RunE: func(cmd *cobra.Command, args []string) error {
		js, err := requireFlag(cmd, "js")
		if err != nil {
			return err
		}
		return withController(func(ctrl *control.Controller) error {
			result, err := ctrl.Evaluate(js)
			if err != nil {
				return fmt.Errorf("eval failed: %w", err)
			}
			fmt.Println(result)
			return nil
		})
	},
}

var screenshotCmd = &cobra.Command{
	Use:   "screenshot",
	Short: "Capture a screenshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		return withController(func(ctrl *control.Controller) error {
			data, err := ctrl.Screenshot()
			if err != nil {
				return fmt.Errorf("screenshot failed: %w", err)
			}
			if output == "-" {
				fmt.Println(base64.StdEncoding.EncodeToString(data))
				return nil
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("failed to write file: %w", err)
			}
			fmt.Printf("Screenshot saved to: %s\n", output)
			return nil
		})
	},
}

var titleCmd = &cobra.Command{
	Use:   "title",
	Short: "Get page title",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withController(func(ctrl *control.Controller) error {
			title, err := ctrl.GetTitle()
			if err != nil {
				return fmt.Errorf("failed to get title: %w", err)
			}
			fmt.Println(title)
			return nil
		})
	},
}

var urlCmd = &cobra.Command{
	Use:   "url",
	Short: "Get current URL",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withController(func(ctrl *control.Controller) error {
			url, err := ctrl.GetURL()
			if err != nil {
				return fmt.Errorf("failed to get URL: %w", err)
			}
			fmt.Println(url)
			return nil
		})
	},
}

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload the current page",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withController(func(ctrl *control.Controller) error {
			if err := ctrl.Reload(); err != nil {
				return fmt.Errorf("reload failed: %w", err)
			}
			fmt.Println("Reloaded")
			return nil
		})
	},
}

func init() {
	controlCmd.PersistentFlags().DurationVarP(&controlTimeout, "timeout", "t", control.DefaultTimeout, "Command timeout")

	navigateCmd.Flags().String("url", "", "URL to navigate to")
	fillCmd.Flags().String("selector", "", "CSS selector of the field")
	fillCmd.Flags().String("text", "", "Text to enter")
	evalCmd.Flags().String("js", "", "JavaScript to evaluate")
	screenshotCmd.Flags().StringP("output", "o", "screenshot.png", "Output file (use - for base64 stdout)")

	controlCmd.AddCommand(
		navigateCmd,
		fillCmd,
		selectorCommand("click", "Click an element", "Clicked", (*control.Controller).Click),
		selectorCommand("focus", "Focus a form field", "Focused", (*control.Controller).Focus),
		selectorCommand("submit", "Submit the form containing an element", "Submitted", (*control.Controller).Submit),
		selectorCommand("wait", "Wait for an element to become visible", "Visible", (*control.Controller).WaitVisible),
		evalCmd,
		screenshotCmd,
		titleCmd,
		urlCmd,
		reloadCmd,
	)
}
