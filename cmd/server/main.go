package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/groupware/internal/client"
	"github.com/dmitrijs2005/groupware/internal/server"
	"github.com/dmitrijs2005/groupware/internal/server/auth"
	"github.com/dmitrijs2005/groupware/internal/server/config"
	"github.com/dmitrijs2005/groupware/internal/server/models"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "groupware-server",
		Short:         "Folder-scoped object synchronization server",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().AddFlagSet(config.Flags())
	root.AddCommand(newServeCmd(), newMigrateCmd(), newTokenCmd(), newPingCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gRPC and health endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			app, err := server.NewApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return app.Run(cmd.Context())
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			if err := server.Migrate(cmd.Context(), cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

// newTokenCmd mints an identity token for development and tests. In
// production tokens come from the provisioning side.
func newTokenCmd() *cobra.Command {
	var (
		contextID, userID int
		groups            []int
		modules           []string
		shared, public    bool
		validity          time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed identity token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			if contextID <= 0 || userID <= 0 {
				return fmt.Errorf("--context-id and --user-id must be positive")
			}
			id := models.Identity{
				ContextID: contextID,
				UserID:    userID,
				GroupIDs:  groups,
				Modules:   models.NewModuleSet(models.ModuleSystem),
				Capabilities: models.Capabilities{
					FullSharedFolderAccess: shared,
					FullPublicFolderAccess: public,
				},
			}
			for _, name := range modules {
				m, ok := models.ParseModule(name)
				if !ok {
					return fmt.Errorf("unknown module %q", name)
				}
				id.Modules = id.Modules.With(m)
			}
			if validity == 0 {
				validity = cfg.AccessTokenValidityDuration
			}
			token, err := auth.GenerateToken(id, []byte(cfg.SecretKey), validity)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().IntVar(&contextID, "context-id", 0, "tenant of the identity")
	cmd.Flags().IntVar(&userID, "user-id", 0, "user of the identity")
	cmd.Flags().IntSliceVar(&groups, "groups", nil, "group memberships")
	cmd.Flags().StringSliceVar(&modules, "modules", []string{models.ModuleContact.String()}, "entitled modules")
	cmd.Flags().BoolVar(&shared, "shared-access", false, "full shared folder access")
	cmd.Flags().BoolVar(&public, "public-access", false, "full public folder access")
	cmd.Flags().DurationVar(&validity, "validity", 0, "token lifetime, access_token_validity_duration when 0")
	return cmd
}

func newPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that a server answers on the gRPC endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			c, err := client.NewGroupwareClient(cfg.EndpointAddrGRPC, "")
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			if err := c.Ping(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		},
	}
}
