package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cabinet/internal/auth"
	authdomain "github.com/smallbiznis/cabinet/internal/auth/domain"
	"github.com/smallbiznis/cabinet/internal/clock"
	"github.com/smallbiznis/cabinet/internal/config"
	"github.com/smallbiznis/cabinet/internal/migration"
	"github.com/smallbiznis/cabinet/internal/observability"
	"github.com/smallbiznis/cabinet/internal/plan"
	plandomain "github.com/smallbiznis/cabinet/internal/plan/domain"
	"github.com/smallbiznis/cabinet/internal/server"
	"github.com/smallbiznis/cabinet/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Version is set at build time with -ldflags.
var Version = "dev"

const commandTimeout = 2 * time.Minute

var rootCmd = &cobra.Command{
	Use:     "cabinet",
	Short:   "Subscription and entitlement engine for practice cabinets",
	Version: Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and webhook gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := fx.New(
			infrastructure(),
			migration.Module,
			server.Module,
		)
		if err := app.Err(); err != nil {
			return err
		}
		app.Run()
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd.Context(), migration.Module)
	},
}

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "Manage the plan catalog",
}

var plansSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Upsert plans.yml into the plans table",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd.Context(),
			migration.Module,
			plan.Module,
			fx.Invoke(func(lc fx.Lifecycle, svc plandomain.Service, holder *config.PlanCatalogHolder, log *zap.Logger) {
				lc.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						count, err := svc.Sync(ctx, holder.Get())
						if err != nil {
							return err
						}
						log.Info("plan catalog synced", zap.Int("plans", count))
						return nil
					},
				})
			}),
		)
	},
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage staff accounts",
}

var userFlags struct {
	email     string
	password  string
	role      string
	cabinetID string
}

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a staff account",
	RunE: func(cmd *cobra.Command, args []string) error {
		var cabinetID snowflake.ID
		if userFlags.cabinetID != "" {
			id, err := snowflake.ParseString(userFlags.cabinetID)
			if err != nil {
				return fmt.Errorf("invalid --cabinet: %w", err)
			}
			cabinetID = id
		}

		return runOnce(cmd.Context(),
			migration.Module,
			auth.Module,
			fx.Invoke(func(lc fx.Lifecycle, svc authdomain.Service, log *zap.Logger) {
				lc.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						user, err := svc.CreateUser(ctx, authdomain.CreateUserRequest{
							Email:     userFlags.email,
							Password:  userFlags.password,
							Role:      userFlags.role,
							CabinetID: cabinetID,
						})
						if err != nil {
							return err
						}
						log.Info("user created",
							zap.String("user_id", user.ID.String()),
							zap.String("role", user.Role),
						)
						return nil
					},
				})
			}),
		)
	},
}

func init() {
	usersCreateCmd.Flags().StringVar(&userFlags.email, "email", "", "login email")
	usersCreateCmd.Flags().StringVar(&userFlags.password, "password", "", "initial password")
	usersCreateCmd.Flags().StringVar(&userFlags.role, "role", authdomain.RoleOwner, "owner, practitioner, assistant or super_admin")
	usersCreateCmd.Flags().StringVar(&userFlags.cabinetID, "cabinet", "", "cabinet id (not needed for super_admin)")
	_ = usersCreateCmd.MarkFlagRequired("email")
	_ = usersCreateCmd.MarkFlagRequired("password")

	plansCmd.AddCommand(plansSyncCmd)
	usersCmd.AddCommand(usersCreateCmd)
	rootCmd.AddCommand(serveCmd, migrateCmd, plansCmd, usersCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func infrastructure() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
	)
}

// runOnce starts an app built from the shared infrastructure plus opts, then
// stops it as soon as every start hook has returned.
func runOnce(parent context.Context, opts ...fx.Option) error {
	if parent == nil {
		parent = context.Background()
	}
	app := fx.New(infrastructure(), fx.Options(opts...), fx.NopLogger)
	if err := app.Err(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(parent, commandTimeout)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return err
	}
	return app.Stop(ctx)
}

func RegisterSnowflake() (*snowflake.Node, error) {
	nodeID := int64(1)
	if raw := os.Getenv("SNOWFLAKE_NODE_ID"); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &nodeID); err != nil {
			return nil, fmt.Errorf("invalid SNOWFLAKE_NODE_ID: %w", err)
		}
	}
	return snowflake.NewNode(nodeID)
}
