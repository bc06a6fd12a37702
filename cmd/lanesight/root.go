package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/danmuck/lanesight/internal/config"
	"github.com/danmuck/lanesight/internal/service"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

// options holds flags shared by every subcommand. Flags set on the command
// line win over the config file.
type options struct {
	ConfigPath string
	CID        int
	ShmName    string
	Transport  string
	RedisAddr  string
	AdminAddr  string
}

// runner is swapped in tests so run can be exercised without a camera.
var runner = func(ctx context.Context, cfg service.ServiceConfig) error {
	return service.NewServiceWithConfig(cfg).RunContext(ctx)
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "lanesight",
		Short:         "Cone detection and OD4 bus bridge for shared-memory camera frames",
		Version:       service.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "path to a TOML config file")
	pf.IntVar(&opts.CID, "cid", 0, "OD4 conference id (253 replay, 112 live)")
	pf.StringVar(&opts.ShmName, "shm-name", "", "shared memory segment name")
	pf.StringVar(&opts.Transport, "transport", "", "bus transport: udp|redis")
	pf.StringVar(&opts.RedisAddr, "redis-addr", "", "redis address for the redis transport")
	pf.StringVar(&opts.AdminAddr, "admin-addr", "", "admin HTTP listen address; empty disables")

	root.AddCommand(newRunCmd(opts), newConfigCmd(opts))
	return root
}

func newRunCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Attach to the frame channel and run the detection loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, opts)
			if err != nil {
				return err
			}
			return runner(cmd.Context(), cfg)
		},
	}
}

func newConfigCmd(opts *options) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or generate configuration",
	}

	var output string
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output == "" {
				tmpl, err := config.Template()
				if err != nil {
					return err
				}
				_, err = fmt.Fprint(cmd.OutOrStdout(), tmpl)
				return err
			}
			if err := config.WriteTemplate(output, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&output, "output", "o", "", "output path; empty prints to stdout")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Validate and print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, opts)
			if err != nil {
				return err
			}
			body, err := toml.Marshal(config.FromService(cfg).Redacted())
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(body)
			return err
		},
	}

	cfgCmd.AddCommand(initCmd, showCmd)
	return cfgCmd
}

// resolveConfig loads the file (or defaults), applies changed flags and
// validates the result. Failures are reported as config subsystem errors.
func resolveConfig(cmd *cobra.Command, opts *options) (service.ServiceConfig, error) {
	cfg := service.DefaultServiceConfig()
	if path := strings.TrimSpace(opts.ConfigPath); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return service.ServiceConfig{}, configErr(err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("cid") {
		cid, err := config.ParseCID(opts.CID)
		if err != nil {
			return service.ServiceConfig{}, configErr(err)
		}
		cfg.Session.CID = cid
	}
	if flags.Changed("shm-name") {
		cfg.Channel.Name = strings.TrimSpace(opts.ShmName)
	}
	if flags.Changed("transport") {
		t, err := service.NormalizeTransport(service.Transport(opts.Transport))
		if err != nil {
			return service.ServiceConfig{}, configErr(err)
		}
		cfg.Transport = t
	}
	if flags.Changed("redis-addr") {
		cfg.Redis.Addr = strings.TrimSpace(opts.RedisAddr)
	}
	if flags.Changed("admin-addr") {
		cfg.AdminListenAddr = strings.TrimSpace(opts.AdminAddr)
	}

	if err := cfg.Validate(); err != nil {
		return service.ServiceConfig{}, configErr(err)
	}
	return cfg, nil
}

func configErr(err error) error {
	return &service.SubsystemError{Subsystem: service.SubsystemConfig, Err: err}
}
