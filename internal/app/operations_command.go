package app

import (
	"strings"

	clierr "github.com/ggonzalez94/bscdefi/internal/errors"
	"github.com/ggonzalez94/bscdefi/internal/execution"
	"github.com/spf13/cobra"
)

func (s *runtimeState) newOperationsCommand() *cobra.Command {
	root := &cobra.Command{Use: "operations", Short: "Inspect the local operation journal"}

	var filter execution.ListFilter
	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded operations, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if filter.Limit < 0 {
				return clierr.New(clierr.CodeUsage, "--limit must be positive")
			}
			store, err := s.journal()
			if err != nil {
				return err
			}
			items, err := store.List(filter)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "list operations", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items, nil, cacheMetaBypass(), nil, false)
		},
	}
	list.Flags().StringVar(&filter.Status, "status", "", "Filter by status (running|completed|failed)")
	list.Flags().StringVar(&filter.Intent, "intent", "", "Filter by operation (e.g. venus_lend)")
	list.Flags().IntVar(&filter.Limit, "limit", 20, "Maximum operations to return")

	get := &cobra.Command{
		Use:   "get <operation-id>",
		Short: "Show one operation with its transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			if id == "" {
				return clierr.New(clierr.CodeUsage, "operation id is required")
			}
			store, err := s.journal()
			if err != nil {
				return err
			}
			item, err := store.Get(id)
			if err != nil {
				if _, ok := clierr.As(err); ok {
					return err
				}
				return clierr.Wrap(clierr.CodeInternal, "read operation", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), item, nil, cacheMetaBypass(), nil, false)
		},
	}

	root.AddCommand(list, get)
	return root
}
