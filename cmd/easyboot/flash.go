package main

import (
	"github.com/spf13/cobra"

	"github.com/synthread/go-easyboot/sender"
)

var flashCmd = &cobra.Command{
	Use:   "flash image",
	Short: "Upload a firmware image to the waiting bootloader",
	Long: `Flash splits the image into data frames, streams them to the bootloader
and seals the download with a finish frame carrying --fw-version and
--fw-date. The device must already be in bootloader mode; use "easyboot
trigger" first when an application is running.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		u, closePort, err := openUploader()
		if err != nil {
			return err
		}
		defer closePort()
		return u.UploadFile(args[0])
	},
}

func init() {
	flashCmd.Flags().IntVar(&maxPacketFlag, "max-packet", sender.DefaultMaxPacket,
		"whole-frame size budget in bytes")
	flashCmd.Flags().Uint32Var(&appBaseFlag, "app-base", 0,
		"expected application base address for HEX images (0 disables the check)")
	rootCmd.AddCommand(flashCmd)
}
