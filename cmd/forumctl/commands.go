package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rpg-forum/internal/app"
	"rpg-forum/internal/config"
	"rpg-forum/internal/logger"
	"rpg-forum/internal/model"
	"rpg-forum/internal/permission"
)

type rootOptions struct {
	configDir string
	verbose   bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "forumctl",
		Short:         "Inspect forum permissions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configDir, "config", ".", "directory holding config.yaml")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log evaluator decisions")

	root.AddCommand(
		newCheckCmd(opts),
		newStatusCmd(opts),
		newRulesCmd(opts),
		newMigrateCmd(opts),
	)
	return root
}

func (o *rootOptions) open(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load(o.configDir)
	if err != nil {
		return nil, err
	}
	log := zap.NewNop()
	if o.verbose {
		cfg.Logging.Level = "debug"
		log = logger.New(cfg.Logging)
	}
	return app.Open(cmd.Context(), cfg, log)
}

func newCheckCmd(opts *rootOptions) *cobra.Command {
	var (
		userID uint
		name   string
		res    permission.Resource
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate one permission for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			user, err := a.Store.User(cmd.Context(), userID)
			if err != nil {
				return err
			}
			d, err := a.Evaluator.Check(cmd.Context(), user, name, res)
			if err != nil {
				return fmt.Errorf("check failed: %w", err)
			}
			verdict := "deny"
			if d.Allowed {
				verdict = "allow"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", verdict, d.Step, d.Reason)
			return nil
		},
	}
	cmd.Flags().UintVar(&userID, "user", 0, "user id")
	cmd.Flags().StringVar(&name, "permission", "", "permission name, e.g. topic.create")
	cmd.Flags().UintVar(&res.SectionID, "section", 0, "section id")
	cmd.Flags().UintVar(&res.TopicID, "topic", 0, "topic id")
	cmd.Flags().UintVar(&res.AuthorUserID, "author", 0, "author user id of the content")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("permission")
	return cmd
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var userID uint
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the character standing of a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			st, err := a.Evaluator.Characters().Resolve(cmd.Context(), userID)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), st)
		},
	}
	cmd.Flags().UintVar(&userID, "user", 0, "user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newRulesCmd(opts *rootOptions) *cobra.Command {
	var (
		entity string
		id     uint
	)
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Show the attribute rules in force on an entity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			typ, err := model.ParseEntityType(entity)
			if err != nil {
				return err
			}
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			resolved, err := a.Evaluator.Rules().ResolveEntityPermissions(cmd.Context(), model.EntityRef{Type: typ, ID: id})
			if err != nil {
				return err
			}
			ops := make([]string, 0, len(resolved))
			for op := range resolved {
				ops = append(ops, string(op))
			}
			sort.Strings(ops)
			w := cmd.OutOrStdout()
			for _, op := range ops {
				rr := resolved[model.Operation(op)]
				fmt.Fprintf(w, "%s\t%s\t%s\tinherited=%t\n", op, rr.Rule.RoleLevel, rr.Rule.CharacterRequirement, rr.Inherited)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&entity, "entity", "section", "category, section or topic")
	cmd.Flags().UintVar(&id, "id", 0, "entity id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the schema and seed the permission catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := opts.open(cmd); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrated, %d permissions in catalog\n", len(permission.Catalog))
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
