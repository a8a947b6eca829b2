package app

import (
	"io"
	"os"

	"github.com/spf13/cobra"
)

// サブコマンド名
const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe = "serve"
	// CommandWorker は期限切れセッションの削除ジョブのみを起動することを示す。
	CommandWorker = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck = "healthcheck"
)

// NewRootCommand はcoursegateのコマンドツリーを構築する。
// サブコマンドを省略した場合はserveとして動作する。
// wはログの出力先で、nilの場合はos.Stdoutを使う。
func NewRootCommand(w io.Writer) *cobra.Command {
	if w == nil {
		w = os.Stdout
	}

	serveCmd := &cobra.Command{
		Use:   CommandServe,
		Short: "Start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithConfig(w, CommandServe, runServe)
		},
	}

	rootCmd := &cobra.Command{
		Use:   "coursegate",
		Short: "Google sign-in and session backend for the course portal",
		Long: `coursegate authenticates users with Google OAuth 2.0, keeps a
server-side session per login, and exposes a profile endpoint plus
post endpoints restricted to a privileged account.

Without a subcommand the HTTP API server is started.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serveCmd.RunE,
	}

	workerCmd := &cobra.Command{
		Use:   CommandWorker,
		Short: "Run the expired session cleanup job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithConfig(w, CommandWorker, runWorker)
		},
	}

	migrateCmd := &cobra.Command{
		Use:   CommandMigrate,
		Short: "Apply pending session store migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithConfig(w, CommandMigrate, runMigrate)
		},
	}

	healthcheckCmd := &cobra.Command{
		Use:   CommandHealthcheck,
		Short: "Probe the local /health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			port, _ := cmd.Flags().GetString("port")
			return runHealthcheck(port)
		},
	}
	healthcheckCmd.Flags().String("port", defaultHealthcheckPort(), "port the server listens on")

	rootCmd.AddCommand(serveCmd, workerCmd, migrateCmd, healthcheckCmd)
	return rootCmd
}

// defaultHealthcheckPort はhealthcheckの既定ポートを返す。
// フル初期化を避けるため、Configを経由せずPORTを直接参照する。
func defaultHealthcheckPort() string {
	if port := os.Getenv("PORT"); port != "" {
		return port
	}
	return "3000"
}
