// Command easyboot drives a device running the easyboot resident
// bootloader over a serial link: it uploads firmware images, queries the
// running application for its version and date, and triggers updates.
package main

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/synthread/go-easyboot/protocol"
	"github.com/synthread/go-easyboot/sender"
)

var (
	ttyFlag       string
	baudFlag      int
	maxPacketFlag int
	versionFlag   uint32
	dateFlag      string
	appBaseFlag   uint32
	verboseFlag   bool
)

var rootCmd = &cobra.Command{
	Use:   "easyboot",
	Short: "Talk to a device running the easyboot serial bootloader",
	Long: `easyboot is the host tool for the easyboot firmware update protocol.

It uploads .bin or Intel HEX images to a device whose bootloader is waiting
for a download, and it talks to the application-side agent to query the
installed version/date or to trigger a reboot into the bootloader.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verboseFlag {
			logrus.SetLevel(logrus.DebugLevel)
		}
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&ttyFlag, "tty", "t", "/dev/ttyUSB0", "serial device")
	rootCmd.PersistentFlags().IntVarP(&baudFlag, "baud", "b", sender.DefaultBaud, "baud rate")
	rootCmd.PersistentFlags().Uint32Var(&versionFlag, "fw-version", 1, "firmware version number")
	rootCmd.PersistentFlags().StringVar(&dateFlag, "fw-date", "", "firmware date as YYYY-MM-DD (default today)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "debug output including wire traffic")
}

// openUploader opens the serial port and builds an Uploader from the
// shared flags. The returned func closes the port.
func openUploader() (*sender.Uploader, func(), error) {
	date, err := parseDate(dateFlag)
	if err != nil {
		return nil, nil, err
	}

	port, err := sender.OpenSerial(ttyFlag, baudFlag)
	if err != nil {
		return nil, nil, err
	}

	u := sender.New(port, &sender.Config{
		MaxPacket: maxPacketFlag,
		AppBase:   appBaseFlag,
		Version:   versionFlag,
		Date:      date,
	})
	return u, func() { port.Close() }, nil
}

func parseDate(s string) (uint32, error) {
	if s == "" {
		return protocol.PackDate(time.Now()), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return 0, err
	}
	return protocol.PackDate(t), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
