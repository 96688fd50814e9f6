package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the running application",
}

var queryVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Report the installed firmware version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		u, closePort, err := openUploader()
		if err != nil {
			return err
		}
		defer closePort()

		reply, err := u.QueryVersion()
		if err != nil {
			return err
		}
		fmt.Println(reply)
		return nil
	},
}

var queryDateCmd = &cobra.Command{
	Use:   "date",
	Short: "Report the installed firmware's update date",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		u, closePort, err := openUploader()
		if err != nil {
			return err
		}
		defer closePort()

		reply, err := u.QueryDate()
		if err != nil {
			return err
		}
		fmt.Println(reply)
		return nil
	},
}

func init() {
	queryCmd.AddCommand(queryVersionCmd)
	queryCmd.AddCommand(queryDateCmd)
	rootCmd.AddCommand(queryCmd)
}
