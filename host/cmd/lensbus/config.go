package main

import (
	"os"

	"github.com/spf13/cobra"

	"lensbus/host/config"
)

var (
	cmdConfig = &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmdConfigInit = &cobra.Command{
		Use:   "init [file]",
		Short: "Write the default configuration",
		Long:  `Writes the built-in defaults to file, or to stdout when no file is given.`,
		Args:  cobra.MaximumNArgs(1),
		RunE:  runConfigInit,
	}
	cmdConfigCheck = &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration",
		RunE:  runConfigCheck,
	}
)

func init() {
	rootCmd.AddCommand(cmdConfig)
	cmdConfig.AddCommand(cmdConfigInit)
	cmdConfig.AddCommand(cmdConfigCheck)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	data, err := config.Default().Encode()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	return os.WriteFile(args[0], data, 0o644)
}

// runConfigCheck resolves every setting the sessions would use
func runConfigCheck(cmd *cobra.Command, _ []string) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	if _, err := conf.Level(); err != nil {
		return err
	}
	rev, err := conf.ProtocolRevision()
	if err != nil {
		return err
	}
	if _, err := conf.TransportKind(rev); err != nil {
		return err
	}
	if _, err := conf.Body.Timing(); err != nil {
		return err
	}
	if _, err := conf.Lens.DescriptorBytes(); err != nil {
		return err
	}
	if _, err := conf.Lens.WakePulseDuration(); err != nil {
		return err
	}
	if conf.GPIO != nil {
		if _, err := conf.GPIO.Offsets(); err != nil {
			return err
		}
	}
	cmd.Println("configuration ok")
	return nil
}
