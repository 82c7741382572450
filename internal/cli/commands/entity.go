package commands

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/cli/ui"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/codegen"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/crud"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/schema"
)

// NewEntityCommand creates the entity command
func NewEntityCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entity",
		Short: "Inspect resolved entity metadata",
	}

	cmd.AddCommand(newEntityListCommand(opts))
	cmd.AddCommand(newEntityShowCommand(opts))
	cmd.AddCommand(newEntityFindCommand(opts))

	return cmd
}

func newEntityListCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List entities and their tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := resolveRegistry(cmd, opts)
			if err != nil {
				return err
			}

			rows := make([][]ui.Cell, 0, reg.Count())
			for _, name := range reg.List() {
				def, _ := reg.Get(name)
				rows = append(rows, ui.Plain(
					name,
					def.TableName(),
					fmt.Sprintf("%d", len(def.PersistedFields())),
					fmt.Sprintf("%d", len(reg.RelationshipsFor(name))),
				))
			}
			newPrinter(cmd.OutOrStdout(), opts).Table([]string{"ENTITY", "TABLE", "COLUMNS", "RELATIONSHIPS"}, rows)
			return nil
		},
	}
}

func newEntityShowCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <entity>",
		Short: "Show the fields and relationships of an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := resolveRegistry(cmd, opts)
			if err != nil {
				return err
			}

			def, ok := reg.Get(args[0])
			if !ok {
				errPrinter := newPrinter(cmd.ErrOrStderr(), opts)
				fmt.Fprint(cmd.ErrOrStderr(), errPrinter.EntityNotFound(args[0], reg.List()))
				return fmt.Errorf("unknown entity %q", args[0])
			}

			renderEntity(newPrinter(cmd.OutOrStdout(), opts), def, reg.RelationshipsFor(def.Name))
			return nil
		},
	}
}

func newEntityFindCommand(opts *globalOptions) *cobra.Command {
	var rawQuery string

	cmd := &cobra.Command{
		Use:   "find <entity>",
		Short: "Query stored records of an entity",
		Long: `Query stored records with list parameters, for example:

  gravitycar entity find Movie --query 'filter[name]=Alien&sort=-created_at&page[size]=5'
  gravitycar entity find Genre --query 'fields=id,name&include_deleted=true'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := url.ParseQuery(rawQuery)
			if err != nil {
				return fmt.Errorf("invalid --query: %w", err)
			}

			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			def, err := a.resolver.Entity(ctx, args[0])
			if err != nil {
				return err
			}
			lq, err := crud.ParseListQuery(def, values)
			if err != nil {
				return err
			}

			db, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			svc := a.newService(db, nil)
			records, err := svc.Find(ctx, def.Name, lq.Criteria, lq.Fields, lq.Params)
			if err != nil {
				return err
			}

			columns := lq.Fields
			if len(columns) == 0 {
				columns = []string{schema.FieldID}
				for _, c := range def.GetDisplayColumns() {
					if c != schema.FieldID {
						columns = append(columns, c)
					}
				}
			}

			rows := make([][]ui.Cell, 0, len(records))
			for _, rec := range records {
				cells := make([]string, len(columns))
				for i, c := range columns {
					if display, ok := rec.Display(c); ok {
						cells[i] = display
					} else {
						cells[i] = rec.GetString(c)
					}
				}
				rows = append(rows, ui.Plain(cells...))
			}

			p := newPrinter(cmd.OutOrStdout(), opts)
			p.Table(columns, rows)
			p.Info("%d %s", len(records), plural(len(records), "record", "records"))
			return nil
		},
	}

	cmd.Flags().StringVarP(&rawQuery, "query", "q", "", "list parameters in query-string form")
	return cmd
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func resolveRegistry(cmd *cobra.Command, opts *globalOptions) (*schema.Registry, error) {
	a, err := newApp(cmd, opts)
	if err != nil {
		return nil, err
	}
	defer a.close()

	reg, err := a.resolver.All(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve metadata: %w", err)
	}
	return reg, nil
}

func renderEntity(p *ui.Printer, def *schema.EntityDefinition, rels []*schema.RelationshipDefinition) {
	p.Heading(def.Name)
	info := []ui.KeyValue{
		{Key: "Table", Value: def.TableName()},
		{Key: "Display", Value: strings.Join(def.GetDisplayColumns(), ", ")},
	}
	if def.Label != "" {
		info = append(info, ui.KeyValue{Key: "Label", Value: def.Label})
	}
	if len(def.RolesAndActions) > 0 {
		roles := make([]string, 0, len(def.RolesAndActions))
		for role := range def.RolesAndActions {
			roles = append(roles, role)
		}
		sort.Strings(roles)
		info = append(info, ui.KeyValue{Key: "Roles", Value: strings.Join(roles, ", ")})
	}
	p.KeyValues(info)
	p.Line("")

	mapper := codegen.NewTypeMapper()
	rows := make([][]ui.Cell, 0, len(def.Fields))
	for _, name := range def.FieldNames() {
		f := def.Fields[name]
		column := "-"
		if f.IsPersisted() {
			if t, err := mapper.MapType(f); err == nil {
				column = t
			}
		}
		rows = append(rows, ui.Plain(name, f.Type.String(), column, fieldFlags(f)))
	}
	p.Table([]string{"FIELD", "TYPE", "COLUMN", "FLAGS"}, rows)

	if len(rels) == 0 {
		return
	}
	p.Line("")
	relRows := make([][]ui.Cell, 0, len(rels))
	for _, rel := range rels {
		other := rel.EntityB
		if other == def.Name {
			other = rel.EntityA
		}
		storage := rel.ForeignKeyColumn()
		if rel.Type == schema.ManyToMany {
			storage = rel.JoinTableName()
		}
		relRows = append(relRows, ui.Plain(rel.Name, rel.Type.String(), other, storage, rel.OnDelete.String()))
	}
	p.Table([]string{"RELATIONSHIP", "TYPE", "WITH", "STORAGE", "ON DELETE"}, relRows)
}

func fieldFlags(f *schema.FieldDefinition) string {
	var flags []string
	if f.Required {
		flags = append(flags, "required")
	}
	if f.Unique {
		flags = append(flags, "unique")
	}
	if f.ReadOnly {
		flags = append(flags, "read-only")
	}
	if f.ReadOnlyAfterCreate {
		flags = append(flags, "read-only-after-create")
	}
	if !f.IsPersisted() {
		flags = append(flags, "virtual")
	}
	if f.RelatedEntity != "" {
		flags = append(flags, "→ "+f.RelatedEntity)
	}
	return strings.Join(flags, " ")
}
