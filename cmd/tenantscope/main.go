package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/tenantscope/internal/app"
	"github.com/dropDatabas3/tenantscope/internal/config"
	"github.com/dropDatabas3/tenantscope/internal/observability/logger"
	"github.com/dropDatabas3/tenantscope/internal/security/secretbox"
)

// Seteadas por ldflags: -X main.version=... -X main.commit=...
var (
	version = "dev"
	commit  = "none"
)

const masked = "********"

func main() {
	// .env opcional; en prod las variables vienen del entorno
	_ = godotenv.Load(".env")

	configPath := envOr("CONFIG_PATH", "")

	root := &cobra.Command{
		Use:           "tenantscope",
		Short:         "Servicio de objetos aislados por tenant (cache y pools SQL)",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", configPath, "Ruta al YAML de configuración (env CONFIG_PATH)")

	loadConfig := func() (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		cfg.App.Version = version
		return cfg, nil
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger.Init(logger.Config{
				Env:         cfg.App.Env,
				Level:       cfg.Log.Level,
				ServiceName: cfg.App.Name,
				Version:     version,
			})
			defer func() { _ = logger.Sync() }()

			a, err := app.New(cfg)
			if err != nil {
				logger.L().Error("app init failed", logger.Err(err))
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := a.Run(ctx); err != nil {
				logger.L().Error("server stopped with error", logger.Err(err))
				return err
			}
			logger.L().Info("server stopped")
			return nil
		},
	}

	encryptCmd := &cobra.Command{
		Use:   "encrypt [value]",
		Short: "Cifra un valor con SECRETBOX_MASTER_KEY (para dsn_enc / password_enc)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := os.Getenv(secretbox.EnvVar)
			if key == "" {
				return fmt.Errorf("falta %s", secretbox.EnvVar)
			}
			box, err := secretbox.New(key)
			if err != nil {
				return err
			}

			var plain string
			if len(args) == 1 {
				plain = args[0]
			} else {
				sc := bufio.NewScanner(cmd.InOrStdin())
				if sc.Scan() {
					plain = sc.Text()
				}
				if err := sc.Err(); err != nil {
					return err
				}
			}
			if strings.TrimSpace(plain) == "" {
				return errors.New("valor vacío")
			}

			enc, err := box.Encrypt(plain)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), enc)
			return nil
		},
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspección de la configuración efectiva",
	}
	configPrintCmd := &cobra.Command{
		Use:   "print",
		Short: "Imprime la config efectiva (YAML, secretos enmascarados)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			maskSecrets(cfg)
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	configValidateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Valida la config y lista los tenants declarados",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			for _, slug := range cfg.TenantSlugs() {
				cc, _ := cfg.CacheFor(slug)
				_, hasDB := cfg.DatabaseFor(slug)
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tcache=%s\tdb=%t\n", slug, cc.Driver, hasDB)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	configCmd.AddCommand(configPrintCmd, configValidateCmd)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Muestra la versión",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tenantscope %s (%s)\n", version, commit)
		},
	}

	root.AddCommand(serveCmd, encryptCmd, configCmd, versionCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// maskSecrets reemplaza credenciales en claro antes de imprimir la config.
func maskSecrets(cfg *config.Config) {
	mask := func(s *string) {
		if *s != "" {
			*s = masked
		}
	}
	mask(&cfg.Security.SecretBoxMasterKey)
	mask(&cfg.Tenancy.JWT.Secret)
	mask(&cfg.Defaults.Cache.Password)
	mask(&cfg.Defaults.Database.DSN)
	for slug, t := range cfg.Tenants {
		if t.Cache != nil {
			c := *t.Cache
			mask(&c.Password)
			t.Cache = &c
		}
		if t.Database != nil {
			d := *t.Database
			mask(&d.DSN)
			t.Database = &d
		}
		cfg.Tenants[slug] = t
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
