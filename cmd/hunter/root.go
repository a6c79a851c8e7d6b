package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TRA3H/hunter/internal/application"
	"github.com/TRA3H/hunter/internal/browser/pwbrowser"
	"github.com/TRA3H/hunter/internal/queue"
)

type rootOptions struct {
	configPath string
	debug      bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "hunter",
		Short:         "Job discovery and review-gated auto-apply",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (yaml); defaults, .env and HUNTER_* env vars apply without one")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newWorkerCmd(opts),
		newScanCmd(opts),
		newCreateCmd(opts),
		newApplyCmd(opts),
		newReviewCmd(opts),
		newCancelCmd(opts),
		newOpenCmd(opts),
		newInstallBrowserCmd(),
	)
	return root
}

// withApp runs fn with a fully wired app and closes it afterwards.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(a *app) error) error {
	a, err := newApp(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

// ── Discovery ───────────────────────────────────────────────────────────────

func newScanCmd(opts *rootOptions) *cobra.Command {
	var inline, force bool
	cmd := &cobra.Command{
		Use:   "scan <board-id>",
		Short: "Enqueue a scan of one board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				if force {
					if err := a.discovery.ResetScan(cmd.Context(), args[0]); err != nil {
						return err
					}
				}
				if inline {
					n, err := a.discovery.ScanBoard(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%d new jobs\n", n)
					return nil
				}
				id, err := a.queue.Enqueue(cmd.Context(), queue.Task{Type: queue.TypeScan, Target: args[0]})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "scan enqueued: %s\n", id)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&inline, "inline", false, "scan in this process instead of enqueueing")
	cmd.Flags().BoolVar(&force, "force", false, "clear a running flag left by a crashed worker first")
	return cmd
}

// ── Applications ────────────────────────────────────────────────────────────

func newCreateCmd(opts *rootOptions) *cobra.Command {
	var req application.CreateRequest
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a pending application for a stored job or a manual entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app) error {
				rec, err := a.apps.Create(cmd.Context(), req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "application created: %s\n", rec.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.JobID, "job", "", "stored job id")
	cmd.Flags().StringVar(&req.JobTitle, "title", "", "job title (manual entry)")
	cmd.Flags().StringVar(&req.Company, "company", "", "company (manual entry)")
	cmd.Flags().StringVar(&req.URL, "url", "", "application url (manual entry)")
	return cmd
}

func newApplyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "apply <application-id>",
		Short: "Enqueue auto-apply for a pending application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				rec, err := a.apps.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if rec.Status != string(application.StatusPending) {
					return fmt.Errorf("%w: application is %s, want pending", application.ErrInvalidState, rec.Status)
				}
				id, err := a.enqueueFor(cmd.Context(), queue.TypeApply, rec.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "auto-apply enqueued: %s\n", id)
				return nil
			})
		},
	}
}

func newReviewCmd(opts *rootOptions) *cobra.Command {
	var values map[string]string
	cmd := &cobra.Command{
		Use:   "review <application-id>",
		Short: "Approve a paused application and enqueue its submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				rec, err := a.apps.SubmitReview(cmd.Context(), args[0], values)
				if err != nil {
					return err
				}
				id, err := a.enqueueFor(cmd.Context(), queue.TypeResume, rec.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "review submitted, resume enqueued: %s\n", id)
				return nil
			})
		},
	}
	cmd.Flags().StringToStringVarP(&values, "field", "f", nil, "field value as name=value; repeatable")
	return cmd
}

func newCancelCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <application-id>",
		Short: "Cancel an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				rec, err := a.apps.Cancel(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "application %s: %s\n", rec.ID, rec.Status)
				return nil
			})
		},
	}
}

func newOpenCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "open <application-id>",
		Short: "Enqueue a headed browser session with the form pre-filled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				id, err := a.enqueueFor(cmd.Context(), queue.TypeOpenBrowser, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "open-browser enqueued: %s\n", id)
				return nil
			})
		},
	}
}

func newInstallBrowserCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install-browser",
		Short: "Download the playwright driver and Chromium",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return pwbrowser.Install()
		},
	}
}
