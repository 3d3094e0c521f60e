package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"sort"

	"github.com/juju/errors"
	"github.com/spf13/cobra"

	"github.com/supby/nodeconf/internal/configuration"
	"github.com/supby/nodeconf/internal/mqtt"
	"github.com/supby/nodeconf/internal/provisioning"
	"github.com/supby/nodeconf/internal/record"
	"github.com/supby/nodeconf/internal/utils/reflector"
)

type runFunc func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error

func withApp(run runFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		return run(ctx, a, cmd, args)
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// newInitConfigCmd writes the effective configuration, defaults and
// environment overrides included, so the generated client ID stays fixed.
func newInitConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config",
		Short: "Write the effective configuration to the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			configService, err := configuration.Init(configFile)
			if err != nil {
				return errors.Annotate(err, "configuration initialization")
			}

			if err := configService.Update(configService.GetConfiguration()); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %v\n", configService.Path())

			return nil
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Rewrite stored records in the latest schema",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			migrated, err := a.service.Migrate(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "migrated %d records to schema %d\n", migrated, record.LatestSchema)

			return nil
		}),
	}
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <device>",
		Short: "Show a record with secrets masked",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			r, err := a.service.Get(ctx, args[0])
			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), mqtt.DeviceStateMessage{DeviceID: args[0], Record: r.StateView()})
		}),
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List devices",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			records, err := a.service.List(ctx)
			if err != nil {
				return err
			}

			for _, stored := range records {
				state := "unconfirmed"
				if stored.Record.IsConfirmed() {
					state = "confirmed"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%v\tschema %d\t%v\n", stored.DeviceID, stored.Record.Version(), state)
			}

			return nil
		}),
	}
}

func newSetCmd() *cobra.Command {
	fields := make([]string, 0)
	for _, f := range record.NewLatest().Fields() {
		fields = append(fields, string(f))
	}
	sort.Strings(fields)

	return &cobra.Command{
		Use:       "set <device> <field> <value>",
		Short:     "Set one field of a record",
		Long:      fmt.Sprintf("Set one field of a record, creating it if needed.\nFields: %v", fields),
		Args:      cobra.ExactArgs(3),
		ValidArgs: fields,
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			_, err := a.service.SetField(ctx, args[0], record.FieldName(args[1]), args[2])
			return err
		}),
	}
}

func newSetPortCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-port <device> <port>",
		Short: "Set the broker port of a record",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			port, err := reflector.ConvertType(args[1], reflect.Uint16)
			if err != nil {
				return errors.Annotate(err, "port")
			}

			_, err = a.service.SetBrokerPort(ctx, args[0], port.(uint16))
			return err
		}),
	}
}

func newConfirmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <device>",
		Short: "Mark a record as confirmed",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			_, err := a.service.Confirm(ctx, args[0])
			return err
		}),
	}
}

func newUnconfirmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unconfirm <device>",
		Short: "Mark a record as unconfirmed",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			_, err := a.service.Unconfirm(ctx, args[0])
			return err
		}),
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <device>",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			return a.service.Delete(ctx, args[0])
		}),
	}
}

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <device>",
		Short: "Print a confirmed record including secrets",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			v, err := a.service.Export(ctx, args[0])
			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), v)
		}),
	}
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import records from a YAML provisioning file",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			provisions, err := provisioning.LoadFile(args[0])
			if err != nil {
				return errors.Annotatef(err, "loading %v", args[0])
			}

			report := a.service.Import(ctx, provisions)
			for _, id := range report.Imported {
				fmt.Fprintf(cmd.OutOrStdout(), "imported %v\n", id)
			}
			rejected := make([]string, 0, len(report.Failed))
			for id := range report.Failed {
				rejected = append(rejected, id)
			}
			sort.Strings(rejected)
			for _, id := range rejected {
				fmt.Fprintf(cmd.ErrOrStderr(), "rejected %v: %v\n", id, report.Failed[id])
			}

			if len(report.Failed) > 0 {
				return errors.Errorf("%d of %d records rejected", len(report.Failed), len(provisions))
			}

			return nil
		}),
	}
}
