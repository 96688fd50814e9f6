package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/synthread/go-easyboot/sender"
)

var (
	powerPinFlag uint
	boot0PinFlag uint
	boot1PinFlag uint
	gpioResetVal bool
)

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Ask the running application to reboot into the bootloader",
	Long: `Trigger sends the update command with --fw-version and --fw-date. The
application acknowledges and reboots into the bootloader only when the
offered version differs from the installed one.

With --gpio-reset the target is power-cycled through host GPIO lines
instead, which also recovers a device whose application hangs.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if gpioResetVal {
			rc, err := sender.NewResetControl(powerPinFlag, boot0PinFlag, boot1PinFlag)
			if err != nil {
				return err
			}
			defer rc.Cleanup()
			rc.PowerCycle()
			fmt.Println("target power-cycled")
			return nil
		}

		u, closePort, err := openUploader()
		if err != nil {
			return err
		}
		defer closePort()

		if err := u.TriggerUpdate(); err != nil {
			return err
		}
		fmt.Println("device rebooting into bootloader")
		return nil
	},
}

func init() {
	triggerCmd.Flags().BoolVar(&gpioResetVal, "gpio-reset", false, "power-cycle via GPIO instead of the serial command")
	triggerCmd.Flags().UintVar(&powerPinFlag, "power-pin", 19, "GPIO driving target power")
	triggerCmd.Flags().UintVar(&boot0PinFlag, "boot0-pin", 39, "GPIO driving BOOT0")
	triggerCmd.Flags().UintVar(&boot1PinFlag, "boot1-pin", 41, "GPIO driving BOOT1")
	rootCmd.AddCommand(triggerCmd)
}
