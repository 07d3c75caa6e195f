package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nethalo/indexadvisor/internal/output"
	"github.com/nethalo/indexadvisor/internal/schema"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Preview or apply a live column-level schema change",
}

var schemaPreviewCmd = &cobra.Command{
	Use:          "preview [table] [field]",
	Short:        "Validate a column change and report its impact, without applying it",
	SilenceUsage: true,
	Args:         cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := bootstrapSchema(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		kind, err := changeKindFlag(cmd)
		if err != nil {
			return err
		}
		fieldType, _ := cmd.Flags().GetString("type")
		newName, _ := cmd.Flags().GetString("rename-to")

		ctx := context.Background()
		preview, err := a.evolver.Preview(ctx, args[0], kind, args[1], fieldType, schema.RollbackOptions{
			FieldType: fieldType,
			NewName:   newName,
		})
		if err != nil {
			return fmt.Errorf("preview failed: %w", err)
		}

		format, _ := cmd.Flags().GetString("format")
		output.NewRenderer(format, os.Stdout).RenderSchema(output.SchemaReport{Preview: &preview})
		return nil
	},
}

var schemaApplyCmd = &cobra.Command{
	Use:          "apply [table] [field]",
	Short:        "Apply a column change: add, drop, alter, or rename",
	SilenceUsage: true,
	Args:         cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := bootstrapSchema(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		kind, err := changeKindFlag(cmd)
		if err != nil {
			return err
		}
		fieldType, _ := cmd.Flags().GetString("type")
		nullable, _ := cmd.Flags().GetBool("nullable")
		defaultValue, _ := cmd.Flags().GetString("default")
		newName, _ := cmd.Flags().GetString("rename-to")
		tenant, _ := cmd.Flags().GetString("tenant")
		force, _ := cmd.Flags().GetBool("force")

		ctx := context.Background()
		var result schema.Result

		switch kind {
		case schema.AddColumn:
			result, err = a.evolver.AddColumnOp(ctx, args[0], args[1], fieldType, nullable, defaultValue, tenant)
		case schema.DropColumn:
			result, err = a.evolver.DropColumnOp(ctx, args[0], args[1], tenant, force)
		case schema.AlterColumn:
			result, err = a.evolver.AlterColumnOp(ctx, args[0], args[1], fieldType, tenant)
		case schema.RenameColumn:
			if newName == "" {
				return fmt.Errorf("--rename-to is required for a rename")
			}
			result, err = a.evolver.RenameColumnOp(ctx, args[0], args[1], newName, tenant)
		}
		if err != nil {
			return fmt.Errorf("schema change failed: %w", err)
		}

		format, _ := cmd.Flags().GetString("format")
		output.NewRenderer(format, os.Stdout).RenderSchema(output.SchemaReport{Result: &result})
		return nil
	},
}

func changeKindFlag(cmd *cobra.Command) (schema.ChangeKind, error) {
	kind, _ := cmd.Flags().GetString("kind")
	switch kind {
	case "add":
		return schema.AddColumn, nil
	case "drop":
		return schema.DropColumn, nil
	case "alter":
		return schema.AlterColumn, nil
	case "rename":
		return schema.RenameColumn, nil
	default:
		return "", fmt.Errorf("invalid --kind %q: must be one of add, drop, alter, rename", kind)
	}
}

func bootstrapSchema(cmd *cobra.Command) (*app, string, error) {
	cfg, schemaName, err := loadConfig(cmd)
	if err != nil {
		return nil, "", err
	}
	verbose, _ := cmd.Flags().GetBool("verbose")
	logger := newLogger(verbose)

	ctx := context.Background()
	a, err := newApp(ctx, cfg, logger, schemaName)
	if err != nil {
		return nil, "", err
	}
	if err := a.ensureSchema(ctx); err != nil {
		a.Close()
		return nil, "", err
	}
	return a, schemaName, nil
}

func init() {
	rootCmd.AddCommand(schemaCmd)
	schemaCmd.AddCommand(schemaPreviewCmd)
	schemaCmd.AddCommand(schemaApplyCmd)

	for _, c := range []*cobra.Command{schemaPreviewCmd, schemaApplyCmd} {
		c.Flags().String("kind", "add", "Change kind: add, drop, alter, rename")
		c.Flags().String("type", "", "Postgres column type (add/alter)")
		c.Flags().String("rename-to", "", "New column name (rename)")
		c.Flags().String("tenant", "", "Tenant label recorded on the audit entry")
	}
	schemaApplyCmd.Flags().Bool("nullable", true, "Whether the new column allows NULL (add)")
	schemaApplyCmd.Flags().String("default", "", "Default value expression (add)")
	schemaApplyCmd.Flags().Bool("force", false, "Drop the column even if impact analysis finds dependents")
}
