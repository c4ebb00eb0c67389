package cli

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"finwise/internal/assistant"
	"finwise/internal/core"
	"finwise/internal/store"
)

func newSummaryCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show totals, budget usage and goal progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := e.open(cmd)
			if err != nil {
				return err
			}
			st := app.Store
			cur := st.Currency()
			t := st.Totals()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Income\t%s\n", core.FormatMoney(t.Income, cur))
			fmt.Fprintf(w, "Expenses\t%s\n", core.FormatMoney(t.Expenses, cur))
			fmt.Fprintf(w, "Balance\t%s\n", core.FormatMoney(t.Balance, cur))
			fmt.Fprintf(w, "Transactions\t%d\n", t.Count)

			if budgets := core.UsageOfAll(st.BudgetCategories()); len(budgets) > 0 {
				fmt.Fprintln(w, "\nBUDGET\tSPENT\tALLOCATED\tUSED\tSTATUS")
				for _, b := range budgets {
					fmt.Fprintf(w, "%s\t%s\t%s\t%.1f%%\t%s\n",
						b.Name, core.FormatMoney(b.Spent, cur), core.FormatMoney(b.Allocated, cur), b.Percentage, b.Status)
				}
			}
			if goals := core.ProgressOfAll(st.SavingsGoals(), time.Now()); len(goals) > 0 {
				fmt.Fprintln(w, "\nGOAL\tSAVED\tTARGET\tPROGRESS\tDAYS LEFT")
				for _, g := range goals {
					fmt.Fprintf(w, "%s\t%s\t%s\t%.1f%%\t%d\n",
						g.Name, core.FormatMoney(g.Current, cur), core.FormatMoney(g.Target, cur), g.Percentage, g.DaysRemaining)
				}
			}
			return w.Flush()
		},
	}
}

func newTxCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "Manage transactions",
	}
	cmd.AddCommand(newTxAddCommand(e), newTxListCommand(e))
	return cmd
}

func newTxAddCommand(e *env) *cobra.Command {
	var (
		category string
		date     string
		income   bool
	)

	cmd := &cobra.Command{
		Use:   "add <name> <amount>",
		Short: "Record an expense (or income with --income)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := core.ParseAmount(args[1])
			if err != nil {
				return fmt.Errorf("amount %q: %w", args[1], err)
			}
			tx := core.Transaction{
				Name:     strings.TrimSpace(args[0]),
				Category: category,
				Amount:   amount,
				Date:     date,
				Type:     core.Expense,
			}
			if tx.Date == "" {
				tx.Date = time.Now().Format(core.DateLayout)
			}
			if income {
				tx.Type = core.Income
			}
			if err := tx.Validate(); err != nil {
				return err
			}

			app, err := e.open(cmd)
			if err != nil {
				return err
			}
			added, err := app.Store.AddTransaction(cmd.Context(), tx)
			if err != nil && !errors.Is(err, store.ErrNotPersisted) {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s)\n", added.ID, core.FormatMoney(added.Amount, app.Store.Currency()))
			return err
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "Other", "category name")
	cmd.Flags().StringVarP(&date, "date", "d", "", "date as YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&income, "income", false, "record as income")

	return cmd
}

func newTxListCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List transactions in the order they were added",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := e.open(cmd)
			if err != nil {
				return err
			}
			cur := app.Store.Currency()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDATE\tNAME\tCATEGORY\tTYPE\tAMOUNT")
			for _, tx := range app.Store.Transactions() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					tx.ID, tx.Date, tx.Name, tx.Category, tx.Type, core.FormatMoney(tx.Amount, cur))
			}
			return w.Flush()
		},
	}
}

func newAskCommand(e *env) *cobra.Command {
	var system string

	cmd := &cobra.Command{
		Use:   "ask <question...>",
		Short: "Ask the assistant about your finances",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := e.open(cmd)
			if err != nil {
				return err
			}
			ctx, stop := SignalContext(cmd.Context())
			defer stop()

			p := app.Assistant.AskAsync(ctx, strings.Join(args, " "), system)
			reply, err := p.Reply()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply)
			return nil
		},
	}

	cmd.Flags().StringVar(&system, "system", "", "custom system prompt")

	return cmd
}

func newAssistantCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assistant",
		Short: "Show or change the assistant settings",
	}
	cmd.AddCommand(newAssistantShowCommand(e), newAssistantConfigureCommand(e))
	return cmd
}

func newAssistantShowCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the assistant settings with the API key masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := e.open(cmd)
			if err != nil {
				return err
			}
			printAssistant(cmd, app.Assistant)
			return nil
		},
	}
}

func newAssistantConfigureCommand(e *env) *cobra.Command {
	var next assistant.Config

	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Change the assistant settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := e.open(cmd)
			if err != nil {
				return err
			}
			cfg := app.Assistant.Config()
			flags := cmd.Flags()
			if flags.Changed("api-key") {
				cfg.APIKey = next.APIKey
			}
			if flags.Changed("endpoint") {
				cfg.Endpoint = next.Endpoint
			}
			if flags.Changed("model") {
				cfg.Model = next.Model
			}
			if flags.Changed("language") {
				cfg.Language = next.Language
			}
			if err := app.Assistant.Configure(cmd.Context(), cfg); err != nil {
				return err
			}
			printAssistant(cmd, app.Assistant)
			return nil
		},
	}

	cmd.Flags().StringVar(&next.APIKey, "api-key", "", "API key")
	cmd.Flags().StringVar(&next.Endpoint, "endpoint", "", "chat completions endpoint URL")
	cmd.Flags().StringVar(&next.Model, "model", "", "model name")
	cmd.Flags().StringVar(&next.Language, "language", "", "reply language code (en, es, fr, ...)")

	return cmd
}

func printAssistant(cmd *cobra.Command, gw *assistant.Gateway) {
	cfg := gw.Config().Masked()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "API key\t%s\n", orNone(cfg.APIKey))
	fmt.Fprintf(w, "Endpoint\t%s\n", cfg.Endpoint)
	fmt.Fprintf(w, "Model\t%s\n", cfg.Model)
	fmt.Fprintf(w, "Language\t%s (%s)\n", cfg.Language, assistant.LanguageName(cfg.Language))
	_ = w.Flush()
}

func orNone(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

func newDeviceCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "device",
		Short: "Print the device id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := e.open(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), app.Store.DeviceID())
			return nil
		},
	}
}

var errResetNotConfirmed = errors.New("reset deletes all local data; pass --yes to confirm")

func newResetCommand(e *env) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all local data and start a new device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errResetNotConfirmed
			}
			app, err := e.open(cmd)
			if err != nil {
				return err
			}
			old := app.Store.DeviceID()
			if err := app.Store.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s, new device %s\n", old, app.Store.DeviceID())
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")

	return cmd
}
