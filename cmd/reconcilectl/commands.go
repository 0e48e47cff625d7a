package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"reconciler/internal/contact/models"
	"reconciler/internal/contact/service"
	"reconciler/internal/contact/store"
	"reconciler/internal/platform/config"
	dErrors "reconciler/pkg/domain-errors"
	"reconciler/pkg/platform/sentinel"
	"reconciler/pkg/requestcontext"
)

type app struct {
	cfg    config.Server
	log    *slog.Logger
	out    io.Writer
	open   func(ctx context.Context) (*store.Backend, error)
	asJSON bool
}

func newApp(cfg config.Server, log *slog.Logger, out io.Writer) *app {
	a := &app{cfg: cfg, log: log, out: out}
	a.open = func(ctx context.Context) (*store.Backend, error) {
		return store.Open(ctx, a.cfg.Database, a.cfg.Identify.TxTimeout)
	}
	return a
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "reconcilectl",
		Short:         "Inspect and maintain the contact identity graph",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&a.asJSON, "json", false, "Print the identify wire format instead of a summary")
	root.PersistentFlags().StringVar(&a.cfg.Database.Driver, "driver", a.cfg.Database.Driver, "Store driver: memory, postgres or sqlite3")
	root.PersistentFlags().StringVar(&a.cfg.Database.URL, "db", a.cfg.Database.URL, "Database URL or SQLite path")

	root.AddCommand(
		a.identifyCmd(),
		a.showCmd(),
		a.tombstoneCmd(),
		a.migrateCmd(),
	)
	return root
}

func (a *app) identifyCmd() *cobra.Command {
	var email, phone string
	cmd := &cobra.Command{
		Use:   "identify",
		Short: "Reconcile an email and/or phone number and print the cluster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withService(cmd.Context(), func(ctx context.Context, svc *service.Service) error {
				view, err := svc.Identify(ctx, models.NewIdentifiers(email, phone))
				if err != nil {
					return err
				}
				return a.print(view)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&phone, "phone", "", "Phone number")
	return cmd
}

func (a *app) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <contact-id>",
		Short: "Print the cluster a contact belongs to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withService(cmd.Context(), func(ctx context.Context, svc *service.Service) error {
				view, err := svc.Lookup(ctx, id)
				if err != nil {
					return err
				}
				return a.print(view)
			})
		},
	}
}

func (a *app) tombstoneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tombstone <contact-id>",
		Short: "Soft-delete a contact so identify no longer matches it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			backend, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer backend.Close()

			if err := backend.Tombstone(cmd.Context(), id, time.Now().UTC()); err != nil {
				if errors.Is(err, sentinel.ErrNotFound) {
					return fmt.Errorf("contact %d is not live", id)
				}
				return err
			}
			a.log.Info("contact tombstoned", "contact_id", id, "log_type", "audit")
			color.New(color.FgYellow).Fprintf(a.out, "tombstoned contact %d\n", id)
			return nil
		},
	}
}

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the contacts schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Open migrates SQL backends
			backend, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer backend.Close()
			color.New(color.FgGreen).Fprintf(a.out, "schema up to date (%s)\n", backend.Driver)
			return nil
		},
	}
}

func (a *app) withService(ctx context.Context, fn func(context.Context, *service.Service) error) error {
	backend, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()

	svc, err := service.New(backend.Tx,
		service.WithLogger(a.log),
		service.WithEmptyPolicy(a.cfg.Identify.EmptyPolicy),
	)
	if err != nil {
		return err
	}
	ctx = requestcontext.WithTime(ctx, time.Now())
	if err := fn(ctx, svc); err != nil {
		if de, ok := dErrors.As(err); ok {
			return fmt.Errorf("%s: %s", de.Code, de.Message)
		}
		return err
	}
	return nil
}

func (a *app) print(view *models.ConsolidatedContact) error {
	if a.asJSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(wireView(view))
	}

	label := color.New(color.FgHiBlack)
	label.Fprint(a.out, "primary      ")
	color.New(color.FgHiGreen, color.Bold).Fprintf(a.out, "%d\n", view.PrimaryID)
	label.Fprint(a.out, "emails       ")
	fmt.Fprintln(a.out, joinOrDash(view.Emails))
	label.Fprint(a.out, "phones       ")
	fmt.Fprintln(a.out, joinOrDash(view.PhoneNumbers))
	label.Fprint(a.out, "secondaries  ")
	ids := make([]string, 0, len(view.SecondaryIDs))
	for _, id := range view.SecondaryIDs {
		ids = append(ids, id.String())
	}
	color.New(color.FgCyan).Fprintln(a.out, joinOrDash(ids))
	return nil
}

type wireContact struct {
	PrimaryContactID    int64    `json:"primaryContatctId"`
	Emails              []string `json:"emails"`
	PhoneNumbers        []string `json:"phoneNumbers"`
	SecondaryContactIDs []int64  `json:"secondaryContactIds"`
}

func wireView(view *models.ConsolidatedContact) map[string]wireContact {
	secondaries := make([]int64, 0, len(view.SecondaryIDs))
	for _, id := range view.SecondaryIDs {
		secondaries = append(secondaries, int64(id))
	}
	return map[string]wireContact{"contact": {
		PrimaryContactID:    int64(view.PrimaryID),
		Emails:              nonNil(view.Emails),
		PhoneNumbers:        nonNil(view.PhoneNumbers),
		SecondaryContactIDs: secondaries,
	}}
}

func parseID(raw string) (models.ContactID, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("contact id must be a positive integer, got %q", raw)
	}
	return models.ContactID(id), nil
}

func joinOrDash(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ", ")
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
